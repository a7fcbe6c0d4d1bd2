package game

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"
)

// --- NetworkSession ---

type MockNetworkSession struct {
	mock.Mock
}

func (m *MockNetworkSession) Close(reason string) {
	m.Called(reason)
}

func (m *MockNetworkSession) Write(data []byte) error {
	args := m.Called(data)
	return args.Error(0)
}

func (m *MockNetworkSession) Read() ([]byte, error) {
	args := m.Called()
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockNetworkSession) Ping() error {
	args := m.Called()
	return args.Error(0)
}

// --- StatsSink ---

type MockStatsSink struct {
	mock.Mock
}

func (m *MockStatsSink) IncrementStats(ctx context.Context, accountID string, increments map[string]int) error {
	args := m.Called(ctx, accountID, increments)
	return args.Error(0)
}

// --- Broadcaster ---

// sendRecord is one captured outbound frame: the target ("room",
// "room-except:<id>" or "conn:<id>") and the decoded envelope.
type sendRecord struct {
	target string
	event  string
	data   string
}

// recordingBroadcaster captures fanout for assertions instead of
// touching real connections.
type recordingBroadcaster struct {
	records []sendRecord
}

func (rb *recordingBroadcaster) ToRoom(room *Room, frame []byte) {
	rb.record("room:"+room.ID, frame)
}

func (rb *recordingBroadcaster) ToRoomExcept(room *Room, exceptConnID string, frame []byte) {
	rb.record("room:"+room.ID+"-except:"+exceptConnID, frame)
}

func (rb *recordingBroadcaster) ToConn(connID string, frame []byte) {
	rb.record("conn:"+connID, frame)
}

func (rb *recordingBroadcaster) record(target string, frame []byte) {
	if frame == nil {
		return
	}
	var msg WireMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		rb.records = append(rb.records, sendRecord{target: target, event: "<invalid>"})
		return
	}
	rb.records = append(rb.records, sendRecord{target: target, event: msg.Type, data: string(msg.Data)})
}

// eventsFor lists the event types captured for one target.
func (rb *recordingBroadcaster) eventsFor(target string) []string {
	var events []string
	for _, r := range rb.records {
		if r.target == target {
			events = append(events, r.event)
		}
	}
	return events
}

// countEvent counts captures of one event type across all targets.
func (rb *recordingBroadcaster) countEvent(event string) int {
	count := 0
	for _, r := range rb.records {
		if r.event == event {
			count++
		}
	}
	return count
}

func (rb *recordingBroadcaster) reset() {
	rb.records = nil
}
