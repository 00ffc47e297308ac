// Package vault implements the local convergent store: one durable
// key-value map per logical collection, synchronous mutation, change
// notification, and tombstone-based deletion.
//
// The store owns persisted records and tombstones exclusively. Everything
// the sync subsystem keeps elsewhere (peer rosters, announcements, session
// state) is transient and rebuilt from nothing on process start.
package vault

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/castmir/vaultmesh/internal/dbx"
	"github.com/castmir/vaultmesh/internal/logging"
	"github.com/castmir/vaultmesh/internal/model"
	"github.com/castmir/vaultmesh/internal/vault/migrations"
)

// Collection names. "settings" holds application settings as one record
// per key; "deletedIds" is the wire name of the tombstone set.
const (
	CollectionCharacters = "characters"
	CollectionCampaigns  = "campaigns"
	CollectionEnemies    = "enemies"
	CollectionEncounters = "encounters"
	CollectionImages     = "images"
	CollectionSettings   = "settings"
)

// Store aggregates the logical collections and enforces the deletion
// contract: removing a record always creates a tombstone, and tombstones
// are never dropped outside a manual reset.
type Store struct {
	db   *sql.DB
	repo *sqliteRepo

	characters *Collection[model.Character]
	campaigns  *Collection[model.Campaign]
	enemies    *Collection[model.Enemy]
	encounters *Collection[model.Encounter]
	images     *Collection[model.Image]
	tombstones *Tombstones

	settingsMu sync.RWMutex
	settings   map[string]any

	subsMu sync.Mutex
	subs   []func(collection, id string)

	log logging.Logger
}

// New creates a memory-only store. Used by tests and by player sessions
// that track in-memory character views without persisting them.
func New(log logging.Logger) *Store {
	if log == nil {
		log = logging.Nop()
	}
	s := &Store{settings: make(map[string]any), log: log}
	s.initCollections(nil)
	return s
}

// Open creates a store backed by the sqlite database at dsn, running
// schema migrations and replaying persisted state into memory.
func Open(ctx context.Context, dsn string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Nop()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open vault db: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate vault db: %w", err)
	}

	repo := newSQLiteRepo(db)
	s := &Store{db: db, repo: repo, settings: make(map[string]any), log: log}
	s.initCollections(repo)

	if err := s.load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func (s *Store) initCollections(repo *sqliteRepo) {
	var sink recordSink
	var tsink tombstoneSink
	if repo != nil {
		sink = repo
		tsink = repo
	}

	s.characters = newCollection[model.Character](CollectionCharacters, sink, s.log)
	s.campaigns = newCollection[model.Campaign](CollectionCampaigns, sink, s.log)
	s.enemies = newCollection[model.Enemy](CollectionEnemies, sink, s.log)
	s.encounters = newCollection[model.Encounter](CollectionEncounters, sink, s.log)
	s.images = newCollection[model.Image](CollectionImages, sink, s.log)
	s.tombstones = newTombstones(tsink)

	s.characters.OnChange(func(id string) { s.notify(CollectionCharacters, id) })
	s.campaigns.OnChange(func(id string) { s.notify(CollectionCampaigns, id) })
	s.enemies.OnChange(func(id string) { s.notify(CollectionEnemies, id) })
	s.encounters.OnChange(func(id string) { s.notify(CollectionEncounters, id) })
	s.images.OnChange(func(id string) { s.notify(CollectionImages, id) })
}

func (s *Store) load(ctx context.Context) error {
	if err := loadInto(ctx, s.repo, s.characters); err != nil {
		return err
	}
	if err := loadInto(ctx, s.repo, s.campaigns); err != nil {
		return err
	}
	if err := loadInto(ctx, s.repo, s.enemies); err != nil {
		return err
	}
	if err := loadInto(ctx, s.repo, s.encounters); err != nil {
		return err
	}
	if err := loadInto(ctx, s.repo, s.images); err != nil {
		return err
	}

	tombs, err := s.repo.loadTombstones(ctx)
	if err != nil {
		return err
	}
	s.tombstones.replaceAll(tombs)

	settings := make(map[string]any)
	err = s.repo.loadRecords(ctx, CollectionSettings, func(id string, data []byte) error {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		settings[id] = v
		return nil
	})
	if err != nil {
		return err
	}
	s.settingsMu.Lock()
	s.settings = settings
	s.settingsMu.Unlock()

	return nil
}

func loadInto[T model.Entity](ctx context.Context, repo *sqliteRepo, col *Collection[T]) error {
	items := make(map[string]T)
	err := repo.loadRecords(ctx, col.Name(), func(id string, data []byte) error {
		var item T
		if err := json.Unmarshal(data, &item); err != nil {
			return fmt.Errorf("corrupt %s record %s: %w", col.Name(), id, err)
		}
		items[id] = item
		return nil
	})
	if err != nil {
		return err
	}
	col.replaceAll(items)
	return nil
}

func (s *Store) Characters() *Collection[model.Character] { return s.characters }
func (s *Store) Campaigns() *Collection[model.Campaign]   { return s.campaigns }
func (s *Store) Enemies() *Collection[model.Enemy]        { return s.enemies }
func (s *Store) Encounters() *Collection[model.Encounter] { return s.encounters }
func (s *Store) Images() *Collection[model.Image]         { return s.images }
func (s *Store) Tombstones() *Tombstones                  { return s.tombstones }

// Remove deletes the record and creates its tombstone. This is the only
// path user-facing deletion should take.
func (s *Store) Remove(ctx context.Context, typ model.RecordType, id string) error {
	if err := s.DeleteRecord(ctx, typ, id); err != nil {
		return err
	}
	ts := model.Tombstone{Id: id, Type: typ, DeletedAt: time.Now().UnixMilli()}
	return s.tombstones.Add(ctx, ts)
}

// DeleteRecord deletes a record without creating a tombstone. The
// reconciliation engine uses it when a tombstone learned from the cloud is
// already being recorded separately.
func (s *Store) DeleteRecord(ctx context.Context, typ model.RecordType, id string) error {
	switch typ {
	case model.RecordCharacter:
		return s.characters.Delete(ctx, id)
	case model.RecordCampaign:
		return s.campaigns.Delete(ctx, id)
	case model.RecordEnemy:
		return s.enemies.Delete(ctx, id)
	case model.RecordEncounter:
		return s.encounters.Delete(ctx, id)
	default:
		return fmt.Errorf("unknown record type %q", typ)
	}
}

// Tombstoned reports whether id must never be re-materialized.
func (s *Store) Tombstoned(id string) bool {
	return s.tombstones.Has(id)
}

// Settings returns a copy of the application settings map.
func (s *Store) Settings() map[string]any {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	out := make(map[string]any, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out
}

func (s *Store) HasSetting(key string) bool {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	_, ok := s.settings[key]
	return ok
}

// SetSetting stores one application setting, persisting it when the store
// is durable.
func (s *Store) SetSetting(ctx context.Context, key string, value any) error {
	if s.repo != nil {
		data, err := json.Marshal(value)
		if err != nil {
			return err
		}
		if err := s.repo.putRecord(ctx, CollectionSettings, key, data, time.Now().UnixMilli()); err != nil {
			return err
		}
	}
	s.settingsMu.Lock()
	s.settings[key] = value
	s.settingsMu.Unlock()
	s.notify(CollectionSettings, key)
	return nil
}

// OnChange registers a store-wide subscriber fired after every mutation of
// any collection with the collection name and affected id.
func (s *Store) OnChange(fn func(collection, id string)) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Store) notify(collection, id string) {
	s.subsMu.Lock()
	subs := s.subs
	s.subsMu.Unlock()
	for _, fn := range subs {
		fn(collection, id)
	}
}

// Reset wipes every collection including tombstones and settings. This is
// the manual "vault reset" escape hatch; nothing else removes tombstones.
func (s *Store) Reset(ctx context.Context) error {
	if s.db != nil {
		// Records and tombstones go together or not at all; a reset that
		// drops tombstones but keeps records would resurrect deletions.
		err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			repo := newSQLiteRepo(tx)
			if err := repo.clearRecords(ctx); err != nil {
				return err
			}
			return repo.clearTombstones(ctx)
		})
		if err != nil {
			return err
		}
	}
	s.characters.clear()
	s.campaigns.clear()
	s.enemies.clear()
	s.encounters.clear()
	s.images.clear()
	s.tombstones.clear()
	s.settingsMu.Lock()
	s.settings = make(map[string]any)
	s.settingsMu.Unlock()
	return nil
}

// Close releases the underlying database, if any.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
