// services/history_service.go
package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/thegame/coordinator"
	"github.com/wfunc/thegame/models"
	"github.com/wfunc/thegame/persistence"
)

const (
	queueSize    = 64
	writeTimeout = 5 * time.Second
)

// HistoryService archives finished games. It watches the coordinator: a game
// is opened on GameStarted and written out when its room is cleared.
type HistoryService struct {
	coordinator.NopObserver

	db      persistence.Database
	log     *zap.SugaredLogger
	now     func() time.Time
	pending map[string]*models.GameRecord
	queue   chan *models.GameRecord
	done    chan struct{}
	closed  bool
	mutex   sync.Mutex
}

var _ coordinator.Observer = (*HistoryService)(nil)

func NewHistoryService(db persistence.Database, log *zap.SugaredLogger) *HistoryService {
	s := &HistoryService{
		db:      db,
		log:     log,
		now:     time.Now,
		pending: make(map[string]*models.GameRecord),
		queue:   make(chan *models.GameRecord, queueSize),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *HistoryService) run() {
	defer close(s.done)
	for record := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := s.db.SaveGameRecord(ctx, record); err != nil {
			s.log.Errorw("failed to archive game", "room", record.RoomName, "error", err)
		} else {
			s.log.Debugw("game archived", "room", record.RoomName, "outcome", record.Outcome)
		}
		cancel()
	}
}

func (s *HistoryService) GameStarted(roomName string, players []string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.pending[roomName] = &models.GameRecord{
		RoomName:  roomName,
		Players:   append([]string(nil), players...),
		Outcome:   models.OutcomeAbandoned,
		StartedAt: s.now(),
	}
}

// TurnEnded counts a completed turn in the room's running game.
func (s *HistoryService) TurnEnded(roomName string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if record, ok := s.pending[roomName]; ok {
		record.Turns++
	}
}

// GameWon marks the room's running game as won.
func (s *HistoryService) GameWon(roomName string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if record, ok := s.pending[roomName]; ok {
		record.Outcome = models.OutcomeWon
	}
}

// RoomCleared is called under the coordinator lock, so it only enqueues.
func (s *HistoryService) RoomCleared(roomName string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	record, ok := s.pending[roomName]
	if !ok {
		return
	}
	delete(s.pending, roomName)
	if s.closed {
		return
	}
	record.EndedAt = s.now()

	select {
	case s.queue <- record:
	default:
		s.log.Warnw("game archive queue full, dropping record", "room", roomName)
	}
}

func (s *HistoryService) RecentGames(ctx context.Context, limit int) ([]models.GameRecord, error) {
	return s.db.RecentGameRecords(ctx, limit)
}

// Close flushes queued records and stops the writer.
func (s *HistoryService) Close() {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mutex.Unlock()

	<-s.done
}
