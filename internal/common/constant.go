package common

// AppName identifies this application inside the cloud snapshot and the
// tracker handshake. Peers and backups produced by other apps are ignored.
const AppName = "vaultmesh"

// SnapshotFileName is the single JSON object kept in the per-user app-data
// folder of the cloud object store.
const SnapshotFileName = "vaultmesh-backup.json"

// SnapshotVersion is the current snapshot schema version.
const SnapshotVersion = 1

// LobbyRoomID is the well-known room used for public campaign discovery.
const LobbyRoomID = "vaultmesh-lobby"

// CampaignRoomPrefix prefixes every per-campaign room id.
const CampaignRoomPrefix = "campaign-"
