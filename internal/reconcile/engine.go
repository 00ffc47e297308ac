// Package reconcile pushes the vault to the cloud snapshot and merges
// the cloud snapshot back in. Upload is debounced; download follows a
// strict tombstones-before-records order.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/castmir/vaultmesh/internal/cloud"
	"github.com/castmir/vaultmesh/internal/common"
	"github.com/castmir/vaultmesh/internal/debounce"
	"github.com/castmir/vaultmesh/internal/logging"
	"github.com/castmir/vaultmesh/internal/model"
	"github.com/castmir/vaultmesh/internal/vault"
)

// Status of the engine. Auth failures get their own state because the
// user-visible remedy (re-authenticate) differs from a plain retry.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusSyncing   Status = "syncing"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusAuthError Status = "authError"
)

const defaultQuiet = 2 * time.Second

// State is a point-in-time view of the engine.
type State struct {
	Status   Status
	LastSync time.Time
	LastErr  error
}

type Engine struct {
	store   *vault.Store
	objects cloud.ObjectStore
	log     logging.Logger

	deb *debounce.Debouncer

	mu       sync.Mutex
	status   Status
	lastSync time.Time
	lastErr  error

	nowFn func() time.Time
}

type Option func(*Engine)

// WithQuiet overrides the upload debounce quiet period.
func WithQuiet(d time.Duration) Option {
	return func(e *Engine) {
		e.deb.Close()
		e.deb = debounce.New(d, e.uploadNow)
	}
}

func New(store *vault.Store, objects cloud.ObjectStore, log logging.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logging.Nop()
	}
	e := &Engine{
		store:   store,
		objects: objects,
		log:     log,
		status:  StatusIdle,
		nowFn:   time.Now,
	}
	e.deb = debounce.New(defaultQuiet, e.uploadNow)
	for _, o := range opts {
		o(e)
	}
	return e
}

// SetNow installs a clock for tests.
func (e *Engine) SetNow(fn func() time.Time) { e.nowFn = fn }

// State returns the current status snapshot.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{Status: e.status, LastSync: e.lastSync, LastErr: e.lastErr}
}

// ScheduleUpload arms the debounced upload. Rapid successive edits
// coalesce into one push; a failed push does not cancel the debouncer,
// the next edit simply arms a fresh attempt.
func (e *Engine) ScheduleUpload() {
	e.deb.Trigger()
}

// Close cancels any pending upload deterministically.
func (e *Engine) Close() {
	e.deb.Close()
}

func (e *Engine) uploadNow() {
	if err := e.SyncToCloud(context.Background()); err != nil {
		e.log.Warn(context.Background(), "debounced upload failed", "error", err)
	}
}

// SyncToCloud builds a snapshot of the vault and writes it to the cloud,
// creating the object on first use and replacing it afterwards.
func (e *Engine) SyncToCloud(ctx context.Context) error {
	e.setStatus(StatusSyncing, nil)

	snap := e.buildSnapshot()
	body, err := json.Marshal(snap)
	if err != nil {
		e.setStatus(StatusError, err)
		return err
	}

	info, err := e.objects.Find(ctx, common.SnapshotFileName)
	switch {
	case errors.Is(err, common.ErrNotFound):
		if _, err := e.objects.Create(ctx, common.SnapshotFileName, body); err != nil {
			return e.fail(err)
		}
	case err != nil:
		return e.fail(err)
	default:
		if err := e.objects.Replace(ctx, info.ID, body); err != nil {
			return e.fail(err)
		}
	}

	e.markSynced()
	e.log.Debug(ctx, "snapshot uploaded",
		"characters", len(snap.Characters), "campaigns", len(snap.Campaigns), "tombstones", len(snap.DeletedIds))
	return nil
}

// buildSnapshot reads the live collections and filters every one of them
// against the tombstone set. The filter runs at build time so a delete
// that races an upload cannot resurrect the record on another device.
func (e *Engine) buildSnapshot() model.Snapshot {
	dead := e.store.Tombstones().Set()
	alive := func(id string) bool {
		_, gone := dead[id]
		return !gone
	}

	snap := model.Snapshot{
		Characters: make([]model.Character, 0),
		Campaigns:  make([]model.Campaign, 0),
		Enemies:    make([]model.Enemy, 0),
		Encounters: make([]model.Encounter, 0),
		DeletedIds: e.store.Tombstones().All(),
		Timestamp:  e.nowFn().UnixMilli(),
		Version:    common.SnapshotVersion,
		AppName:    common.AppName,
	}

	e.store.Characters().ForEach(func(c model.Character) bool {
		if alive(c.Id) {
			snap.Characters = append(snap.Characters, c)
		}
		return true
	})
	e.store.Campaigns().ForEach(func(c model.Campaign) bool {
		if alive(c.Id) {
			snap.Campaigns = append(snap.Campaigns, c)
		}
		return true
	})
	e.store.Enemies().ForEach(func(en model.Enemy) bool {
		if alive(en.Id) {
			snap.Enemies = append(snap.Enemies, en)
		}
		return true
	})
	e.store.Encounters().ForEach(func(en model.Encounter) bool {
		if alive(en.Id) {
			snap.Encounters = append(snap.Encounters, en)
		}
		return true
	})

	images := make(map[string]string)
	e.store.Images().ForEach(func(img model.Image) bool {
		images[img.Hash] = img.Data
		return true
	})
	if len(images) > 0 {
		snap.Images = images
	}

	if settings := e.store.Settings(); len(settings) > 0 {
		snap.AppSettings = settings
	}
	return snap
}

// SyncFromCloud downloads the snapshot and merges it. The order is the
// load-bearing invariant: tombstones merge first and actively delete
// matching local records, then live records merge under the updated
// tombstone set, then images union, then settings with local precedence.
func (e *Engine) SyncFromCloud(ctx context.Context) error {
	e.setStatus(StatusSyncing, nil)

	info, err := e.objects.Find(ctx, common.SnapshotFileName)
	if errors.Is(err, common.ErrNotFound) {
		// Fresh account, nothing to merge.
		e.markSynced()
		return nil
	}
	if err != nil {
		return e.fail(err)
	}

	body, err := e.objects.Download(ctx, info.ID)
	if err != nil {
		return e.fail(err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return e.fail(fmt.Errorf("decoding snapshot: %w", err))
	}

	if err := e.merge(ctx, &snap); err != nil {
		return e.fail(err)
	}
	e.markSynced()
	return nil
}

func (e *Engine) merge(ctx context.Context, snap *model.Snapshot) error {
	// 1+2: learn the cloud's tombstones and apply each new one to the
	// local copy of the record, which must disappear retroactively.
	for _, ts := range snap.DeletedIds {
		known := e.store.Tombstoned(ts.Id)
		if err := e.store.Tombstones().Add(ctx, ts); err != nil {
			return err
		}
		if !known {
			if err := e.store.DeleteRecord(ctx, ts.Type, ts.Id); err != nil {
				return err
			}
		}
	}

	// 3: live records, tombstone check against the merged set.
	for _, c := range snap.Characters {
		if err := mergeRecord(ctx, e.store, e.store.Characters(), model.RecordCharacter, c, c.LastUpdate); err != nil {
			return err
		}
	}
	for _, c := range snap.Campaigns {
		if err := mergeRecord(ctx, e.store, e.store.Campaigns(), model.RecordCampaign, c, c.LastUpdate); err != nil {
			return err
		}
	}
	for _, en := range snap.Enemies {
		if err := mergeRecord(ctx, e.store, e.store.Enemies(), model.RecordEnemy, en, en.LastUpdate); err != nil {
			return err
		}
	}
	for _, en := range snap.Encounters {
		if err := mergeRecord(ctx, e.store, e.store.Encounters(), model.RecordEncounter, en, en.LastUpdate); err != nil {
			return err
		}
	}

	// 4: images are immutable blobs, union by hash.
	for hash, data := range snap.Images {
		if !e.store.Images().Has(hash) {
			if err := e.store.Images().Set(ctx, model.Image{Hash: hash, Data: data}, snap.Timestamp); err != nil {
				return err
			}
		}
	}

	// 5: settings, local key wins, cloud fills gaps only.
	for key, value := range snap.AppSettings {
		if !e.store.HasSetting(key) {
			if err := e.store.SetSetting(ctx, key, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// mergeRecord applies one cloud record: tombstoned ids are skipped and
// any stale local copy is deleted; otherwise a strictly newer local copy
// wins, and the cloud value is adopted in every other case.
func mergeRecord[T model.Entity](ctx context.Context, store *vault.Store, col *vault.Collection[T], typ model.RecordType, incoming T, incomingUpdate int64) error {
	id := incoming.EntityID()
	if store.Tombstoned(id) {
		if col.Has(id) {
			return store.DeleteRecord(ctx, typ, id)
		}
		return nil
	}
	if local, ok := col.Get(id); ok {
		if lastUpdateOf(local) > incomingUpdate {
			return nil
		}
	}
	return col.Set(ctx, incoming, incomingUpdate)
}

func lastUpdateOf(v any) int64 {
	switch r := v.(type) {
	case model.Character:
		return r.LastUpdate
	case model.Campaign:
		return r.LastUpdate
	case model.Enemy:
		return r.LastUpdate
	case model.Encounter:
		return r.LastUpdate
	default:
		return 0
	}
}

func (e *Engine) setStatus(s Status, err error) {
	e.mu.Lock()
	e.status = s
	e.lastErr = err
	e.mu.Unlock()
}

func (e *Engine) markSynced() {
	e.mu.Lock()
	e.status = StatusSuccess
	e.lastSync = e.nowFn()
	e.lastErr = nil
	e.mu.Unlock()
}

// fail records the error, distinguishing an expired session from plain
// sync failures.
func (e *Engine) fail(err error) error {
	if errors.Is(err, common.ErrSessionExpired) || errors.Is(err, common.ErrNotSignedIn) {
		e.setStatus(StatusAuthError, err)
	} else {
		e.setStatus(StatusError, err)
	}
	return err
}
