package syncprogress

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lorekeep/lorekeep/pkg/logger"
)

// SSE event names emitted by the tracker. The stream handler additionally
// sends a "connected" acknowledgement that carries no snapshot.
const (
	EventStarted      = "started"
	EventProgress     = "progress"
	EventComplete     = "complete"
	EventError        = "error"
	EventCurrentState = "current_state"
)

// Event pairs an event name with the snapshot taken at emit time.
type Event struct {
	Type     string
	Progress Progress
}

// Notifier receives completion notifications for finished syncs.
type Notifier interface {
	SyncFinished(ctx context.Context, email string, p *Progress) error
}

// ArchiveFunc persists a finished snapshot. Called once per terminal sync.
type ArchiveFunc func(ctx context.Context, p *Progress) error

// Update carries optional field changes for UpdateProgress. Nil / empty
// fields are left untouched; TotalItems is a pointer so zero can be set.
type Update struct {
	Status      string
	Stage       string
	TotalItems  *int
	CurrentItem string
}

// percentage milestones that always trigger an emit when crossed
var milestones = []float64{10, 25, 50, 75, 90}

const subscriberBuffer = 100

// Tracker keeps in-memory progress snapshots keyed by sync id and fans out
// events to SSE subscribers. Finished syncs are archived and eventually
// cleaned from memory.
type Tracker struct {
	mu       sync.Mutex
	progress map[string]*Progress
	subs     map[string][]chan Event

	// pending "email me when done" registrations and per-sync sent flags
	notifyEmail map[string]string
	notified    map[string]bool

	notifier Notifier
	archive  ArchiveFunc
}

// NewTracker returns a Tracker. Both notifier and archive may be nil.
func NewTracker(notifier Notifier, archive ArchiveFunc) *Tracker {
	return &Tracker{
		progress:    make(map[string]*Progress),
		subs:        make(map[string][]chan Event),
		notifyEmail: make(map[string]string),
		notified:    make(map[string]bool),
		notifier:    notifier,
		archive:     archive,
	}
}

// StartSync registers a new sync operation and returns its id.
func (t *Tracker) StartSync(tenantID, userID, connectorType string) string {
	syncID := uuid.New().String()
	now := time.Now().UTC()

	t.mu.Lock()
	t.progress[syncID] = &Progress{
		SyncID:        syncID,
		TenantID:      tenantID,
		UserID:        userID,
		ConnectorType: connectorType,
		Status:        StatusConnecting,
		Stage:         "Connecting to service...",
		StartedAt:     &now,
	}
	t.emitLocked(syncID, EventStarted)
	t.mu.Unlock()

	logger.Infof("sync started: %s connector=%s", syncID, connectorType)
	return syncID
}

// UpdateProgress applies the given field changes and emits a progress event.
// Unknown sync ids are logged and ignored.
func (t *Tracker) UpdateProgress(syncID string, u Update) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.progress[syncID]
	if !ok {
		logger.Warnf("sync %s not found", syncID)
		return
	}
	if u.Status != "" {
		p.Status = u.Status
	}
	if u.Stage != "" {
		p.Stage = u.Stage
	}
	if u.TotalItems != nil {
		p.TotalItems = *u.TotalItems
	}
	if u.CurrentItem != "" {
		p.CurrentItem = u.CurrentItem
	}
	t.emitLocked(syncID, EventProgress)
}

// IncrementProcessed bumps the processed (or failed) counter and emits a
// progress event only at significant milestones to keep streams quiet:
// percentage crossings, every fifth item, first and last item, or every
// third item when the total is unknown.
func (t *Tracker) IncrementProcessed(syncID, currentItem string, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.progress[syncID]
	if !ok {
		return
	}
	if failed {
		p.FailedItems++
	} else {
		p.ProcessedItems++
	}
	if currentItem != "" {
		p.CurrentItem = currentItem
	}

	emit := false
	if p.TotalItems > 0 {
		percent := p.percent()
		prev := p.ProcessedItems - 1
		prevPercent := 0.0
		if prev > 0 {
			prevPercent = float64(prev) / float64(p.TotalItems) * 100
		}
		for _, m := range milestones {
			if prevPercent < m && m <= percent {
				emit = true
				break
			}
		}
		if !emit && p.ProcessedItems%5 == 0 {
			emit = true
		}
		if p.ProcessedItems == 1 || p.ProcessedItems == p.TotalItems {
			emit = true
		}
	} else if p.ProcessedItems%3 == 0 || p.ProcessedItems == 1 {
		emit = true
	}

	if emit {
		t.emitLocked(syncID, EventProgress)
	}
}

// CompleteSync marks the sync finished. A non-empty errorMessage moves it to
// the error status. Fires the pending notification (at most once), archives
// the snapshot, and emits the matching terminal event.
func (t *Tracker) CompleteSync(syncID, errorMessage string) {
	t.mu.Lock()
	p, ok := t.progress[syncID]
	if !ok {
		t.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	p.CompletedAt = &now
	event := EventComplete
	if errorMessage != "" {
		p.Status = StatusError
		p.Stage = "Sync failed"
		p.ErrorMessage = errorMessage
		event = EventError
	} else {
		p.Status = StatusComplete
		p.Stage = "Sync complete"
	}
	t.emitLocked(syncID, event)
	snapshot := t.snapshotLocked(p)
	email := t.pendingEmailLocked(syncID)
	t.mu.Unlock()

	logger.Infof("sync finished: %s status=%s", syncID, snapshot.Status)

	if email != "" {
		t.sendNotification(email, &snapshot)
	}
	if t.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.archive(ctx, &snapshot); err != nil {
			logger.Errorf("archive sync %s: %v", syncID, err)
		}
	}
}

// GetProgress returns a copy of the current snapshot, or nil when unknown.
func (t *Tracker) GetProgress(syncID string) *Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.progress[syncID]
	if !ok {
		return nil
	}
	s := t.snapshotLocked(p)
	return &s
}

// Subscribe registers a channel for events on the given sync. The current
// state, if any, is replayed immediately. The returned func unsubscribes and
// must be called when the consumer is done.
func (t *Tracker) Subscribe(syncID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	t.mu.Lock()
	t.subs[syncID] = append(t.subs[syncID], ch)
	if p, ok := t.progress[syncID]; ok {
		ch <- Event{Type: EventCurrentState, Progress: t.snapshotLocked(p)}
	}
	n := len(t.subs[syncID])
	t.mu.Unlock()

	logger.Debugf("subscriber added for %s (total %d)", syncID, n)

	unsubscribe := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		chans := t.subs[syncID]
		for i, c := range chans {
			if c == ch {
				t.subs[syncID] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
	}
	return ch, unsubscribe
}

// RequestNotification registers an email to be notified when the sync
// finishes. If the sync already reached a terminal state the notification is
// sent immediately. At most one email is ever sent per sync.
func (t *Tracker) RequestNotification(syncID, email string) {
	t.mu.Lock()
	p, ok := t.progress[syncID]
	if ok && p.Terminal() {
		if t.notified[syncID] {
			t.mu.Unlock()
			return
		}
		t.notified[syncID] = true
		snapshot := t.snapshotLocked(p)
		t.mu.Unlock()
		t.sendNotification(email, &snapshot)
		return
	}
	t.notifyEmail[syncID] = email
	t.mu.Unlock()
}

// CleanupOldSyncs drops finished syncs whose completion is older than maxAge,
// along with their subscriber lists and notification bookkeeping.
func (t *Tracker) CleanupOldSyncs(maxAge time.Duration) {
	now := time.Now().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()
	for syncID, p := range t.progress {
		if p.CompletedAt == nil || now.Sub(*p.CompletedAt) <= maxAge {
			continue
		}
		delete(t.progress, syncID)
		delete(t.subs, syncID)
		delete(t.notifyEmail, syncID)
		delete(t.notified, syncID)
		logger.Debugf("cleaned up old sync %s", syncID)
	}
}

// pendingEmailLocked consumes the pending registration, honoring the
// once-per-sync guarantee. Caller holds the lock.
func (t *Tracker) pendingEmailLocked(syncID string) string {
	email, ok := t.notifyEmail[syncID]
	if !ok || t.notified[syncID] {
		return ""
	}
	t.notified[syncID] = true
	delete(t.notifyEmail, syncID)
	return email
}

func (t *Tracker) sendNotification(email string, p *Progress) {
	if t.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := t.notifier.SyncFinished(ctx, email, p); err != nil {
		logger.Errorf("notify %s for sync %s: %v", email, p.SyncID, err)
	}
}

// snapshotLocked copies the progress with the derived percent filled in.
// Caller holds the lock.
func (t *Tracker) snapshotLocked(p *Progress) Progress {
	s := *p
	s.PercentComplete = p.percent()
	return s
}

// emitLocked fans the snapshot out to all subscribers without blocking.
// Slow subscribers with full buffers miss the event. Caller holds the lock.
func (t *Tracker) emitLocked(syncID, eventType string) {
	p, ok := t.progress[syncID]
	if !ok {
		return
	}
	ev := Event{Type: eventType, Progress: t.snapshotLocked(p)}
	for _, ch := range t.subs[syncID] {
		select {
		case ch <- ev:
		default:
			logger.Warnf("subscriber buffer full for %s, dropping event", syncID)
		}
	}
}
