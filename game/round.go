package game

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/rs/zerolog/log"

	"github.com/madalinioana/guess-the-drawing/domain"
)

type Phase int

const (
	PhaseWaiting Phase = iota
	PhaseSelectWord
	PhaseDrawing
)

func (p Phase) String() string {
	switch p {
	case PhaseSelectWord:
		return "select-word"
	case PhaseDrawing:
		return "drawing"
	default:
		return "waiting"
	}
}

const (
	drawingTime       = 60 // seconds per drawing phase
	guesserPoolSize   = 10 // max points a single guess can earn
	drawerBaseDefault = 10

	// Remaining-time marks at which one hidden letter is revealed.
	firstRevealAt  = 40
	secondRevealAt = 20

	closeGuessDistance = 2
	statsTimeout       = 5 * time.Second
)

// RoundState is the active drawing round of one room. At most one exists
// per room; it is cleared when the round ends.
type RoundState struct {
	DrawerID string
	Word     string
	Hint     string
	Phase    Phase
	TimeLeft int

	// Connection ids that guessed correctly this round, with the points
	// each was awarded.
	Guessed map[string]int

	// Drawer share recorded on the latest correct guess; the base for
	// the end-of-round drawer award.
	DrawerBase int

	timer *roundTimer
}

// roundTimer owns the 1s ticker of a round. Ticks are funneled into the
// gateway event queue so every mutation stays on the gateway goroutine.
// Stop is idempotent; every path that clears round state calls it.
type roundTimer struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func startRoundTimer(roomID string, ticks chan<- string) *roundTimer {
	t := &roundTimer{
		ticker: time.NewTicker(time.Second),
		done:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-t.done:
				return
			case <-t.ticker.C:
				select {
				case ticks <- roomID:
				case <-t.done:
					return
				}
			}
		}
	}()
	return t
}

func (t *roundTimer) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}

// Broadcaster fans frames out to connections. The gateway implements it.
type Broadcaster interface {
	ToRoom(room *Room, frame []byte)
	ToRoomExcept(room *Room, exceptConnID string, frame []byte)
	ToConn(connID string, frame []byte)
}

// StatsSink receives the fire-and-forget account stat increments at
// round end. Failures are logged and never block round completion.
type StatsSink interface {
	IncrementStats(ctx context.Context, accountID string, increments map[string]int) error
}

// Rounds drives the per-room phase machine:
// waiting → select-word → drawing → waiting. Every operation is a
// silent no-op on a wrong phase, wrong actor or dead room, so stale or
// out-of-order events can never corrupt state or leak timing.
type Rounds struct {
	registry *Registry
	out      Broadcaster
	stats    StatsSink
	ticks    chan<- string

	randInt func(n int) int
}

func NewRounds(registry *Registry, out Broadcaster, stats StatsSink, ticks chan<- string) *Rounds {
	return &Rounds{
		registry: registry,
		out:      out,
		stats:    stats,
		ticks:    ticks,
		randInt:  rand.Intn,
	}
}

// StartRound picks a drawer uniformly at random and moves the room into
// select-word. Rooms with fewer than two members, or with a round
// already running, are left untouched.
func (rds *Rounds) StartRound(roomID string) {
	room := rds.registry.Room(roomID)
	if room == nil || len(room.Members) < 2 || room.Round != nil {
		return
	}

	drawer := room.Members[rds.randInt(len(room.Members))]
	room.Round = &RoundState{
		DrawerID: drawer.ConnID,
		Phase:    PhaseSelectWord,
		Guessed:  make(map[string]int),
	}

	rds.out.ToRoom(room, makeEvent(EvtClearBoard, nil))
	rds.out.ToConn(drawer.ConnID, makeEvent(EvtSetPhase, PhasePayload{Phase: PhaseSelectWord.String()}))
	rds.out.ToRoom(room, makeEvent(EvtSetPhase, PhasePayload{
		Phase:  PhaseSelectWord.String(),
		Drawer: drawer.Username,
	}))

	log.Info().Str("room", roomID).Str("drawer", drawer.Username).Msg("round started")
}

// ChooseWord accepts the drawer's word during select-word and opens the
// drawing phase with its countdown.
func (rds *Rounds) ChooseWord(roomID, connID, word string) {
	room := rds.registry.Room(roomID)
	if room == nil || room.Round == nil {
		return
	}
	round := room.Round
	if round.Phase != PhaseSelectWord || round.DrawerID != connID {
		return
	}

	word = strings.ToLower(SanitizeText(word))
	if word == "" {
		return
	}

	drawer := room.member(connID)
	if drawer == nil {
		return
	}

	round.Word = word
	round.Hint = WordHint(word)
	round.Phase = PhaseDrawing
	round.TimeLeft = drawingTime
	round.timer = startRoundTimer(roomID, rds.ticks)

	rds.out.ToConn(connID, makeEvent(EvtSetPhase, PhasePayload{
		Phase: PhaseDrawing.String(),
		Word:  word,
		Time:  round.TimeLeft,
	}))
	rds.out.ToRoomExcept(room, connID, makeEvent(EvtSetPhase, PhasePayload{
		Phase:      PhaseDrawing.String(),
		Drawer:     drawer.Username,
		WordHint:   round.Hint,
		WordLength: len([]rune(word)),
		Time:       round.TimeLeft,
	}))

	log.Info().Str("room", roomID).Str("drawer", drawer.Username).Msg("word chosen, drawing phase started")
}

// SubmitGuess broadcasts the chat message and, during drawing, resolves
// it as a guess. A connection scores at most once per round; full
// clearance ends the round without waiting for the timer.
func (rds *Rounds) SubmitGuess(roomID, connID, raw string) {
	room := rds.registry.Room(roomID)
	if room == nil {
		return
	}
	sender := room.member(connID)
	if sender == nil {
		return
	}

	text := SanitizeText(raw)
	if text == "" {
		return
	}

	// Chat always goes out first; the room chats through the same
	// channel it guesses on.
	rds.out.ToRoom(room, makeEvent(EvtMessage, map[string]string{
		"username": sender.Username,
		"message":  text,
	}))

	round := room.Round
	if round == nil || round.Phase != PhaseDrawing || round.DrawerID == connID {
		return
	}
	if _, already := round.Guessed[connID]; already {
		return
	}

	guess := strings.TrimSpace(strings.ToLower(text))
	if guess != round.Word {
		if levenshtein.ComputeDistance(guess, round.Word) <= closeGuessDistance {
			rds.out.ToConn(connID, makeEvent(EvtCloseGuess, map[string]string{"guess": text}))
		}
		return
	}

	points := ceilDiv(guesserPoolSize*round.TimeLeft, drawingTime)
	round.Guessed[connID] = points
	round.DrawerBase = ceilDiv(guesserPoolSize*(drawingTime-round.TimeLeft), drawingTime)
	rds.registry.UpdateScore(roomID, sender.Username, points)

	rds.out.ToRoom(room, makeEvent(EvtCorrectGuess, map[string]string{
		"username": sender.Username,
		"word":     round.Word,
	}))
	rds.out.ToRoom(room, makeEvent(EvtUpdateScores, room.ScoreEntries()))

	log.Info().Str("room", roomID).Str("guesser", sender.Username).Int("points", points).Msg("correct guess")

	if len(round.Guessed) >= rds.nonDrawerCount(room, round) {
		rds.EndRound(roomID, round.DrawerBase)
	}
}

// Tick is one second of the drawing countdown, delivered through the
// gateway queue. A tick arriving after the round ended finds no state
// and does nothing.
func (rds *Rounds) Tick(roomID string) {
	room := rds.registry.Room(roomID)
	if room == nil || room.Round == nil || room.Round.Phase != PhaseDrawing {
		return
	}
	round := room.Round

	round.TimeLeft--
	rds.out.ToRoom(room, makeEvent(EvtTimeUpdate, map[string]int{"time": round.TimeLeft}))

	if round.TimeLeft == firstRevealAt || round.TimeLeft == secondRevealAt {
		revealed := rds.revealLetter(round.Word, round.Hint)
		if revealed != round.Hint {
			round.Hint = revealed
			rds.out.ToRoomExcept(room, round.DrawerID, makeEvent(EvtWordHint, map[string]string{"hint": revealed}))
		}
	}

	if round.TimeLeft <= 0 {
		base := round.DrawerBase
		if len(round.Guessed) == 0 {
			base = drawerBaseDefault
		}
		rds.EndRound(roomID, base)
	}
}

// EndRound settles the drawer's award, reveals the word, pushes the
// stat increments and returns the room to waiting. Idempotent: a second
// call finds the round already cleared and no-ops, so a same-tick guess
// and timer expiry cannot double-settle.
func (rds *Rounds) EndRound(roomID string, drawerBase int) {
	room := rds.registry.Room(roomID)
	if room == nil || room.Round == nil {
		return
	}
	round := room.Round
	room.Round = nil
	if round.timer != nil {
		round.timer.Stop()
	}

	guessedCount := len(round.Guessed)
	totalGuessers := rds.nonDrawerCount(room, round)

	drawerAward := 0
	if totalGuessers > 0 {
		drawerAward = ceilDiv((totalGuessers-guessedCount)*drawerBase, totalGuessers)
	}

	drawer := room.member(round.DrawerID)
	drawerName := ""
	if drawer != nil {
		drawerName = drawer.Username
		if drawerAward > 0 {
			rds.registry.UpdateScore(roomID, drawer.Username, drawerAward)
		}
	}

	rds.out.ToRoom(room, makeEvent(EvtUpdateScores, room.ScoreEntries()))
	rds.out.ToRoom(room, makeEvent(EvtRoundEnded, map[string]string{
		"drawer": drawerName,
		"word":   round.Word,
	}))

	rds.pushStats(room, round, drawer, drawerAward)

	log.Info().Str("room", roomID).Str("drawer", drawerName).
		Int("guessed", guessedCount).Int("drawerAward", drawerAward).Msg("round ended")
}

// MemberLeft adjusts round bookkeeping after a departure. The drawer
// leaving, the room shrinking below two members, or the departure
// completing a full clearance all end the round.
func (rds *Rounds) MemberLeft(roomID, connID string) {
	room := rds.registry.Room(roomID)
	if room == nil || room.Round == nil {
		return
	}
	round := room.Round

	endBase := round.DrawerBase
	if len(round.Guessed) == 0 {
		endBase = drawerBaseDefault
	}

	if round.DrawerID == connID || len(room.Members) < 2 {
		rds.EndRound(roomID, endBase)
		return
	}

	delete(round.Guessed, connID)
	if round.Phase == PhaseDrawing && len(round.Guessed) >= rds.nonDrawerCount(room, round) {
		rds.EndRound(roomID, round.DrawerBase)
	}
}

// RoomClosed stops the timer of a room that was deleted outright.
func (rds *Rounds) RoomClosed(room *Room) {
	if room == nil || room.Round == nil {
		return
	}
	if room.Round.timer != nil {
		room.Round.timer.Stop()
	}
	room.Round = nil
}

func (rds *Rounds) nonDrawerCount(room *Room, round *RoundState) int {
	count := 0
	for _, m := range room.Members {
		if m.ConnID != round.DrawerID {
			count++
		}
	}
	return count
}

func (rds *Rounds) pushStats(room *Room, round *RoundState, drawer *Member, drawerAward int) {
	if rds.stats == nil {
		return
	}

	type update struct {
		accountID  string
		increments map[string]int
	}
	var updates []update

	if drawer != nil && drawer.AccountID != "" {
		updates = append(updates, update{drawer.AccountID, map[string]int{
			domain.StatGamesPlayed:       1,
			domain.StatDrawingsCompleted: 1,
			domain.StatTotalScore:        drawerAward,
		}})
	}
	for connID, points := range round.Guessed {
		m := room.member(connID)
		if m == nil || m.AccountID == "" {
			continue
		}
		updates = append(updates, update{m.AccountID, map[string]int{
			domain.StatCorrectGuesses: 1,
			domain.StatTotalScore:     points,
		}})
	}
	if len(updates) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
		defer cancel()
		for _, u := range updates {
			if err := rds.stats.IncrementStats(ctx, u.accountID, u.increments); err != nil {
				log.Error().Err(err).Str("account", u.accountID).Msg("stats update failed")
			}
		}
	}()
}

// revealLetter uncovers one random still-hidden letter of the hint.
func (rds *Rounds) revealLetter(word, hint string) string {
	wordRunes := []rune(word)
	hintRunes := []rune(hint)
	if len(wordRunes) != len(hintRunes) {
		return hint
	}

	var hidden []int
	for i, r := range hintRunes {
		if r == '_' && isMaskable(wordRunes[i]) {
			hidden = append(hidden, i)
		}
	}
	if len(hidden) == 0 {
		return hint
	}

	pos := hidden[rds.randInt(len(hidden))]
	hintRunes[pos] = wordRunes[pos]
	return string(hintRunes)
}

// WordHint masks every letter and digit, preserving length and any
// other characters such as spaces.
func WordHint(word string) string {
	runes := []rune(word)
	for i, r := range runes {
		if isMaskable(r) {
			runes[i] = '_'
		}
	}
	return string(runes)
}

func isMaskable(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// ceilDiv is ceil(a/b) for non-negative a and positive b.
func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
