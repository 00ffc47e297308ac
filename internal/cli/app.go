// Package cli is the interactive front end: it wires the vault, the
// reconciliation engine, the lobby, and the campaign session together and
// drives them from a small REPL.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/castmir/vaultmesh/internal/cloud"
	"github.com/castmir/vaultmesh/internal/config"
	"github.com/castmir/vaultmesh/internal/discovery"
	"github.com/castmir/vaultmesh/internal/logging"
	"github.com/castmir/vaultmesh/internal/model"
	"github.com/castmir/vaultmesh/internal/reconcile"
	"github.com/castmir/vaultmesh/internal/session"
	"github.com/castmir/vaultmesh/internal/transport"
	"github.com/castmir/vaultmesh/internal/vault"
)

type App struct {
	config   *config.Config
	log      logging.Logger
	store    *vault.Store
	sessions *cloud.SessionStore
	engine   *reconcile.Engine
	lobby    *discovery.Lobby
	session  *session.Controller
	reader   *bufio.Reader
}

func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	if log == nil {
		log = logging.Nop()
	}

	store, err := vault.Open(ctx, cfg.DatabasePath, log)
	if err != nil {
		return nil, fmt.Errorf("opening vault: %w", err)
	}

	sessions := cloud.NewSessionStore(cfg.SessionPath)
	objects, err := newObjectStore(ctx, cfg, sessions)
	if err != nil {
		store.Close()
		return nil, err
	}

	engine := reconcile.New(store, objects, log, reconcile.WithQuiet(cfg.DebounceQuiet))

	joiner := transport.NewWSJoiner(transport.Config{
		AppID:        cfg.AppID,
		TrackerURLs:  cfg.TrackerURLs,
		ProbeTimeout: cfg.ProbeTimeout,
	}, log)
	lobby := discovery.NewLobby(joiner, log, discovery.WithCooldown(cfg.JoinCooldown))
	ctrl := session.NewController(joiner, store, log,
		session.WithHeartbeat(cfg.HeartbeatInterval),
		session.WithMonitor(cfg.MonitorInterval),
		session.WithCooldown(cfg.JoinCooldown),
	)

	// Every local edit arms the debounced upload.
	store.OnChange(func(string, string) { engine.ScheduleUpload() })

	return &App{
		config:   cfg,
		log:      log,
		store:    store,
		sessions: sessions,
		engine:   engine,
		lobby:    lobby,
		session:  ctrl,
		reader:   bufio.NewReader(os.Stdin),
	}, nil
}

func newObjectStore(ctx context.Context, cfg *config.Config, sessions *cloud.SessionStore) (cloud.ObjectStore, error) {
	switch cfg.CloudBackend {
	case "s3":
		return cloud.NewS3Store(ctx, cloud.S3Config{
			Region:       cfg.S3.Region,
			Bucket:       cfg.S3.Bucket,
			Prefix:       cfg.S3.Prefix,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			BaseEndpoint: cfg.S3.BaseEndpoint,
		})
	case "drive", "":
		return cloud.NewDriveStore(sessions), nil
	default:
		return nil, fmt.Errorf("unknown cloud backend %q", cfg.CloudBackend)
	}
}

// Run starts the REPL and blocks until the user exits.
func (a *App) Run(ctx context.Context) {
	defer a.Close()
	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.statusLine, scanner)
}

// Close tears down connections and flushes nothing: a pending debounced
// upload is cancelled deliberately, the next start re-syncs.
func (a *App) Close() {
	a.session.Leave()
	a.lobby.Leave()
	a.engine.Close()
	a.store.Close()
}

func (a *App) isSignedIn() bool {
	_, err := a.sessions.Current()
	return err == nil
}

func (a *App) statusLine() string {
	st := a.session.State()
	cloudPart := "signed out"
	if a.isSignedIn() {
		cloudPart = "signed in"
	}
	if st.RoomID == "" {
		return cloudPart
	}
	return fmt.Sprintf("%s | %s (%s, %d peers)", cloudPart, st.CampaignID, st.Status, len(st.Peers))
}

// announcement returns the lobby beacon for the currently joined campaign
// if the local user is its GM and it is published.
func (a *App) announcement() *model.Announcement {
	st := a.session.State()
	if !st.IsGM || st.CampaignID == "" {
		return nil
	}
	camp, ok := a.store.Campaigns().Get(st.CampaignID)
	if !ok || !camp.Published {
		return nil
	}
	return &model.Announcement{
		Id:           camp.Id,
		Name:         camp.Name,
		GmName:       camp.GmName,
		Description:  camp.Description,
		System:       camp.System,
		PasswordHash: camp.PasswordHash,
	}
}
