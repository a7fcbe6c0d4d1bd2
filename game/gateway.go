package game

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	tickQueueSize  = 64
	inboxQueueSize = 1024
	pingInterval   = 30 * time.Second
)

// Gateway binds live connections to the registry and the round machine.
// Run is the single goroutine on which every room mutation happens;
// inbound events, round timer ticks and disconnects all interleave on
// its queue, so the in-memory maps need no locking.
type Gateway struct {
	registry *Registry
	rounds   *Rounds
	limiter  *RateLimiter
	presence *Presence

	conns map[string]*Conn

	attach   chan *Conn
	inbox    chan envelope
	ticks    chan string
	removals chan *Conn
}

func NewGateway(stats StatsSink) *Gateway {
	g := &Gateway{
		registry: NewRegistry(),
		limiter:  NewRateLimiter(),
		presence: NewPresence(),
		conns:    make(map[string]*Conn),
		attach:   make(chan *Conn, 16),
		inbox:    make(chan envelope, inboxQueueSize),
		ticks:    make(chan string, tickQueueSize),
		removals: make(chan *Conn, 16),
	}
	g.rounds = NewRounds(g.registry, g, stats, g.ticks)
	return g
}

// Serve registers the connection and runs its pumps, blocking until the
// socket dies. Called from the HTTP handler goroutine.
func (g *Gateway) Serve(conn *Conn) {
	g.attach <- conn
	go conn.ReadPump(g.inbox, g.removals)
	conn.WritePump()
}

// Run processes the event queue. It closes started once the loop is
// accepting traffic and never returns.
func (g *Gateway) Run(started chan struct{}) {
	sweep := time.NewTicker(rateLimitSweepInterval)
	defer sweep.Stop()
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	close(started)

	for {
		select {
		case conn := <-g.attach:
			g.conns[conn.ID] = conn
			log.Debug().Str("conn", conn.ID).Msg("connection attached")

		case env := <-g.inbox:
			g.dispatch(env)

		case roomID := <-g.ticks:
			g.rounds.Tick(roomID)

		case conn := <-g.removals:
			g.handleDisconnect(conn)

		case <-sweep.C:
			g.limiter.Sweep()

		case <-ping.C:
			for _, conn := range g.conns {
				conn.RequestPing()
			}
		}
	}
}

// dispatch routes one inbound message. The recover guard keeps a
// malformed or hostile message from ever taking down the shared loop.
func (g *Gateway) dispatch(env envelope) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("conn", env.conn.ID).
				Str("type", env.msg.Type).Msg("recovered from dispatch panic")
		}
	}()

	conn := env.conn
	if _, attached := g.conns[conn.ID]; !attached {
		return
	}

	switch env.msg.Type {
	case MsgCreateRoom:
		g.handleCreateRoom(conn, env.msg.Data)
	case MsgJoinRoom:
		g.handleJoinRoom(conn, env.msg.Data)
	case MsgLeaveRoom:
		g.handleLeave(conn)
	case MsgKickPlayer:
		g.handleKick(conn, env.msg.Data)
	case MsgStartGame:
		g.handleStartGame(conn, env.msg.Data)
	case MsgSelectWord:
		g.handleSelectWord(conn, env.msg.Data)
	case MsgMessage:
		g.handleChat(conn, env.msg.Data)
	case MsgSendDrawing:
		g.handleDrawing(conn, env.msg.Data)
	case MsgClearBoard:
		g.handleClearBoard(conn)
	default:
		g.sendError(conn, "unknown event type")
	}
}

func (g *Gateway) handleCreateRoom(conn *Conn, data json.RawMessage) {
	if !g.limiter.Allow(conn.ID, MsgCreateRoom) {
		g.sendRateLimited(conn, "Too many rooms created, slow down")
		return
	}
	if conn.RoomID != "" {
		return
	}

	var payload CreateRoomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		g.sendError(conn, "invalid payload")
		return
	}
	username := SanitizeUsername(payload.Username)
	if username == "" {
		g.sendError(conn, "invalid username")
		return
	}

	conn.Username = username
	conn.Avatar = SanitizeText(payload.Avatar)
	conn.AccountID = payload.UserID
	g.presence.Register(conn.AccountID, conn.ID)

	room := g.registry.CreateRoom(conn.ID, username, conn.Avatar, conn.AccountID)
	conn.RoomID = room.ID

	conn.Send(makeEvent(EvtRoomCreated, room.ID))
	g.ToRoom(room, makeEvent(EvtUpdateUsers, room.Users()))

	log.Info().Str("room", room.ID).Str("creator", username).Msg("room created")
}

func (g *Gateway) handleJoinRoom(conn *Conn, data json.RawMessage) {
	if !g.limiter.Allow(conn.ID, MsgJoinRoom) {
		g.sendRateLimited(conn, "Too many join attempts, slow down")
		return
	}
	if conn.RoomID != "" {
		return
	}

	var payload JoinRoomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		g.sendError(conn, "invalid payload")
		return
	}
	username := SanitizeUsername(payload.Username)
	if username == "" {
		g.sendError(conn, "invalid username")
		return
	}

	avatar := SanitizeText(payload.Avatar)
	room, err := g.registry.Join(payload.RoomID, conn.ID, username, avatar, payload.UserID)
	if err != nil {
		g.sendError(conn, err.Error())
		return
	}

	conn.Username = username
	conn.Avatar = avatar
	conn.AccountID = payload.UserID
	conn.RoomID = room.ID
	g.presence.Register(conn.AccountID, conn.ID)

	conn.Send(makeEvent(EvtRoomJoined, map[string]any{
		"roomId": room.ID,
		"users":  room.Users(),
	}))
	g.ToRoom(room, makeEvent(EvtPlayersUpdate, room.Users()))
	g.ToRoom(room, makeEvent(EvtUpdateUsers, room.Users()))

	log.Info().Str("room", room.ID).Str("user", username).Msg("joined room")
}

func (g *Gateway) handleKick(conn *Conn, data json.RawMessage) {
	var payload KickPlayerPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		g.sendError(conn, "invalid payload")
		return
	}

	if _, err := g.registry.Kick(conn.ID, payload.TargetID, payload.RoomID); err != nil {
		g.sendError(conn, err.Error())
		return
	}

	target := g.conns[payload.TargetID]
	if target == nil {
		return
	}

	target.Send(makeEvent(EvtKicked, nil))
	g.handleLeave(target)
	delete(g.conns, target.ID)
	g.presence.Unregister(target.AccountID, target.ID)
	g.limiter.Forget(target.ID)
	target.Shutdown("kicked")

	log.Info().Str("room", payload.RoomID).Str("target", payload.TargetID).Msg("player kicked")
}

func (g *Gateway) handleStartGame(conn *Conn, data json.RawMessage) {
	var payload StartGamePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		g.sendError(conn, "invalid payload")
		return
	}
	room := g.registry.Room(payload.RoomID)
	if room == nil {
		g.sendError(conn, ErrRoomNotFound.Error())
		return
	}
	if room.CreatorID != conn.ID {
		g.sendError(conn, ErrNotCreator.Error())
		return
	}
	g.rounds.StartRound(room.ID)
}

func (g *Gateway) handleSelectWord(conn *Conn, data json.RawMessage) {
	if conn.RoomID == "" {
		return
	}
	var payload SelectWordPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	g.rounds.ChooseWord(conn.RoomID, conn.ID, payload.Word)
}

func (g *Gateway) handleChat(conn *Conn, data json.RawMessage) {
	if conn.RoomID == "" {
		return
	}
	if !g.limiter.Allow(conn.ID, MsgMessage) {
		g.sendRateLimited(conn, "You're sending messages too fast")
		return
	}
	var payload ChatPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	g.rounds.SubmitGuess(conn.RoomID, conn.ID, payload.Text)
}

func (g *Gateway) handleDrawing(conn *Conn, data json.RawMessage) {
	// Drawing overflow is dropped without feedback; at 60 packets a
	// second a warning per drop would flood the client right back.
	if !g.limiter.Allow(conn.ID, MsgSendDrawing) {
		return
	}

	room := g.registry.RoomOf(conn.ID)
	if room == nil || room.Round == nil {
		return
	}
	round := room.Round
	if round.Phase != PhaseDrawing || round.DrawerID != conn.ID {
		return
	}

	var payload DrawingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	if !validStrokes(payload.Strokes) {
		return
	}

	g.ToRoomExcept(room, conn.ID, makeEvent(EvtReceiveDrawing, payload.Strokes))
}

func (g *Gateway) handleClearBoard(conn *Conn) {
	room := g.registry.RoomOf(conn.ID)
	if room == nil {
		return
	}
	// Mid-round only the drawer may wipe the board.
	if round := room.Round; round != nil && round.DrawerID != conn.ID {
		return
	}
	g.ToRoomExcept(room, conn.ID, makeEvent(EvtClearBoard, nil))
}

// handleLeave detaches a connection from its room: score entry dropped,
// creator role promoted when needed, round adjusted, empty room deleted.
func (g *Gateway) handleLeave(conn *Conn) {
	room, removed, promoted, deleted := g.registry.Leave(conn.ID)
	if removed == nil {
		return
	}
	conn.RoomID = ""

	if deleted {
		g.rounds.RoomClosed(room)
		log.Info().Str("room", room.ID).Msg("room deleted, last member left")
		return
	}

	g.rounds.MemberLeft(room.ID, conn.ID)

	g.ToRoom(room, makeEvent(EvtUpdateUsers, room.Users()))
	g.ToRoom(room, makeEvent(EvtPlayersUpdate, room.Users()))
	if promoted != nil {
		g.ToRoom(room, makeEvent(EvtCreatorChanged, map[string]string{
			"connectionId": promoted.ConnID,
			"username":     promoted.Username,
		}))
		log.Info().Str("room", room.ID).Str("creator", promoted.Username).Msg("creator changed")
	}
}

func (g *Gateway) handleDisconnect(conn *Conn) {
	if _, attached := g.conns[conn.ID]; !attached {
		// Already detached by a kick.
		return
	}
	delete(g.conns, conn.ID)
	g.handleLeave(conn)
	g.presence.Unregister(conn.AccountID, conn.ID)
	g.limiter.Forget(conn.ID)
	conn.Shutdown("")
	log.Debug().Str("conn", conn.ID).Msg("connection removed")
}

// PresenceLookup resolves an account id to its live connection id, for
// the invite delivery side channel.
func (g *Gateway) PresenceLookup(accountID string) (string, bool) {
	return g.presence.Lookup(accountID)
}

func (g *Gateway) sendError(conn *Conn, message string) {
	conn.Send(makeEvent(EvtError, message))
}

func (g *Gateway) sendRateLimited(conn *Conn, message string) {
	conn.Send(makeEvent(EvtRateLimited, message))
}

// Broadcaster implementation. Sends are non-blocking; a saturated
// client drops frames instead of stalling the loop.

func (g *Gateway) ToRoom(room *Room, frame []byte) {
	if frame == nil {
		return
	}
	for _, m := range room.Members {
		if conn := g.conns[m.ConnID]; conn != nil {
			if err := conn.Send(frame); err != nil {
				log.Debug().Str("conn", conn.ID).Msg("send buffer full, frame dropped")
			}
		}
	}
}

func (g *Gateway) ToRoomExcept(room *Room, exceptConnID string, frame []byte) {
	if frame == nil {
		return
	}
	for _, m := range room.Members {
		if m.ConnID == exceptConnID {
			continue
		}
		if conn := g.conns[m.ConnID]; conn != nil {
			if err := conn.Send(frame); err != nil {
				log.Debug().Str("conn", conn.ID).Msg("send buffer full, frame dropped")
			}
		}
	}
}

func (g *Gateway) ToConn(connID string, frame []byte) {
	if frame == nil {
		return
	}
	if conn := g.conns[connID]; conn != nil {
		conn.Send(frame)
	}
}

const (
	maxCanvasCoord = 4096
	maxStrokeWidth = 64
	maxStrokePts   = 512
)

func validStrokes(strokes []Stroke) bool {
	if len(strokes) == 0 {
		return false
	}
	for _, s := range strokes {
		if s.Width < 1 || s.Width > maxStrokeWidth {
			return false
		}
		if len(s.Points) == 0 || len(s.Points) > maxStrokePts {
			return false
		}
		for _, p := range s.Points {
			if p.X < 0 || p.X > maxCanvasCoord || p.Y < 0 || p.Y > maxCanvasCoord {
				return false
			}
		}
	}
	return true
}
