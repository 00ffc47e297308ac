package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/castmir/vaultmesh/internal/cloud"
	"github.com/castmir/vaultmesh/internal/common"
	"github.com/castmir/vaultmesh/internal/cryptox"
	"github.com/castmir/vaultmesh/internal/model"
)

// Login stores a cloud access token pasted by the user. The token's
// expiry is read from its JWT claims when possible.
func (a *App) Login(ctx context.Context) error {
	token, err := GetSecret(os.Stdout, "Paste cloud access token")
	if err != nil {
		return err
	}
	if len(token) == 0 {
		return errors.New("empty token")
	}
	if err := a.sessions.Save(cloud.NewSession(strings.TrimSpace(string(token)))); err != nil {
		return err
	}
	printlnFn("Signed in.")
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.sessions.Clear(); err != nil {
		return err
	}
	printlnFn("Signed out.")
	return nil
}

// Sync pushes the vault to the cloud immediately, bypassing the debounce.
func (a *App) Sync(ctx context.Context) error {
	if err := a.engine.SyncToCloud(ctx); err != nil {
		return err
	}
	printlnFn("Snapshot uploaded.")
	return nil
}

// Pull merges the cloud snapshot into the vault.
func (a *App) Pull(ctx context.Context) error {
	if err := a.engine.SyncFromCloud(ctx); err != nil {
		return err
	}
	printlnFn("Snapshot merged.")
	return nil
}

func (a *App) List(ctx context.Context) error {
	printlnFn("Characters:")
	a.store.Characters().ForEach(func(c model.Character) bool {
		line := fmt.Sprintf("  %s  %s", c.Id, c.Name)
		if c.CampaignId != "" {
			line += fmt.Sprintf("  [campaign %s, %s]", c.CampaignId, c.CampaignApproval)
		}
		printlnFn(line)
		return true
	})
	printlnFn("Campaigns:")
	a.store.Campaigns().ForEach(func(c model.Campaign) bool {
		line := fmt.Sprintf("  %s  %s (%d members)", c.Id, c.Name, len(c.Members))
		if c.Published {
			line += "  [published]"
		}
		printlnFn(line)
		return true
	})
	return nil
}

// Delete tombstones a record. The record disappears locally and, via the
// tombstone, on every other device.
func (a *App) Delete(ctx context.Context, id string) error {
	typ, ok := a.recordType(id)
	if !ok {
		return fmt.Errorf("record %s: %w", id, common.ErrNotFound)
	}
	if err := a.store.Remove(ctx, typ, id); err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("Deleted %s.", id))
	return nil
}

func (a *App) recordType(id string) (model.RecordType, bool) {
	switch {
	case a.store.Characters().Has(id):
		return model.RecordCharacter, true
	case a.store.Campaigns().Has(id):
		return model.RecordCampaign, true
	case a.store.Enemies().Has(id):
		return model.RecordEnemy, true
	case a.store.Encounters().Has(id):
		return model.RecordEncounter, true
	}
	return "", false
}

// JoinCampaign connects to a campaign room. Players are prompted for the
// character they bring unless exactly one of theirs already belongs to
// the campaign.
func (a *App) JoinCampaign(ctx context.Context, campaignID string, asGM bool) error {
	characterID := ""
	if !asGM {
		if err := a.checkTablePassword(campaignID); err != nil {
			return err
		}
		characterID = a.characterFor(campaignID)
		if characterID == "" {
			picked, err := GetSimpleText(a.reader, "Character id to play", os.Stdout)
			if err != nil {
				return err
			}
			characterID = picked
		}
	}

	joined, err := a.session.Join(ctx, campaignID, asGM, characterID)
	if err != nil {
		return err
	}
	if joined {
		printlnFn(fmt.Sprintf("Joined campaign %s.", campaignID))
	} else {
		printlnFn("Already joined (or try again in a moment).")
	}
	return nil
}

// checkTablePassword gates joining a password-protected table. The hash
// comes from the campaign's lobby beacon; campaigns we never saw in the
// lobby are treated as open, since the room id itself was shared out of
// band.
func (a *App) checkTablePassword(campaignID string) error {
	for _, c := range a.lobby.Campaigns() {
		if c.Id != campaignID || c.PasswordHash == "" {
			continue
		}
		password, err := GetSecret(os.Stdout, "Table password")
		if err != nil {
			return err
		}
		if !cryptox.VerifyCampaignPassword(campaignID, string(password), c.PasswordHash) {
			return errors.New("wrong table password")
		}
		return nil
	}
	return nil
}

func (a *App) characterFor(campaignID string) string {
	found := ""
	a.store.Characters().ForEach(func(c model.Character) bool {
		if c.CampaignId == campaignID {
			if found != "" {
				found = "" // ambiguous, make the user pick
				return false
			}
			found = c.Id
		}
		return true
	})
	return found
}

func (a *App) LeaveCampaign(ctx context.Context) error {
	if err := a.session.Leave(); err != nil {
		return err
	}
	printlnFn("Left campaign.")
	return nil
}

// Publish marks the joined campaign as publicly listed and starts
// announcing it in the lobby.
func (a *App) Publish(ctx context.Context) error {
	st := a.session.State()
	if !st.IsGM || st.CampaignID == "" {
		return errors.New("join a campaign as GM first")
	}
	camp, ok := a.store.Campaigns().Get(st.CampaignID)
	if !ok {
		return fmt.Errorf("campaign %s: %w", st.CampaignID, common.ErrNotFound)
	}
	password, err := GetSimpleText(a.reader, "Table password (empty for an open table)", os.Stdout)
	if err != nil {
		return err
	}
	if password == "" {
		camp.PasswordHash = ""
	} else {
		camp.PasswordHash = cryptox.CampaignPasswordHash(camp.Id, password)
	}

	camp.Published = true
	now := time.Now().UnixMilli()
	camp.LastUpdate = now
	if err := a.store.Campaigns().Set(ctx, camp, now); err != nil {
		return err
	}

	if _, err := a.lobby.Join(ctx); err != nil {
		return err
	}
	a.lobby.Announce(ctx, a.announcement)
	printlnFn(fmt.Sprintf("Campaign %s is now public.", camp.Id))
	return nil
}

// Lobby joins the discovery lobby and lists what is online.
func (a *App) Lobby(ctx context.Context) error {
	if _, err := a.lobby.Join(ctx); err != nil {
		return err
	}
	campaigns := a.lobby.Campaigns()
	if len(campaigns) == 0 {
		printlnFn("No campaigns online right now.")
		return nil
	}
	for _, c := range campaigns {
		line := fmt.Sprintf("  %s  %s", c.Id, c.Name)
		if c.GmName != "" {
			line += "  GM: " + c.GmName
		}
		if c.System != "" {
			line += "  (" + c.System + ")"
		}
		printlnFn(line)
	}
	return nil
}

func (a *App) Status(ctx context.Context) error {
	st := a.session.State()
	printlnFn(fmt.Sprintf("Session: %s", st.Status))
	if st.RoomID != "" {
		printlnFn(fmt.Sprintf("  campaign %s, gm=%v, peers=%d, gm online=%v",
			st.CampaignID, st.IsGM, len(st.Peers), a.session.GMOnline()))
	}

	es := a.engine.State()
	line := fmt.Sprintf("Cloud: %s", es.Status)
	if !es.LastSync.IsZero() {
		line += fmt.Sprintf(" (last sync %s)", es.LastSync.Format(time.RFC3339))
	}
	printlnFn(line)
	if es.LastErr != nil {
		printlnFn("  " + es.LastErr.Error())
	}
	return nil
}

// Reset wipes the vault, tombstones included. Confirmation is explicit
// because past deletions become forgettable after this.
func (a *App) Reset(ctx context.Context) error {
	answer, err := GetSimpleText(a.reader, "This erases all local data, including deletion history. Type 'yes' to continue", os.Stdout)
	if err != nil {
		return err
	}
	if answer != "yes" {
		printlnFn("Cancelled.")
		return nil
	}
	if err := a.store.Reset(ctx); err != nil {
		return err
	}
	printlnFn("Vault reset.")
	return nil
}
