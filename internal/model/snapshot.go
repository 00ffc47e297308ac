package model

// Snapshot is the single JSON object kept in the cloud object store. It is
// written wholesale (never patched) and always filtered against the local
// tombstone set before upload, so the cloud can never carry a record whose
// deletion this device already knows about.
type Snapshot struct {
	Characters []Character       `json:"characters"`
	Campaigns  []Campaign        `json:"campaigns"`
	Enemies    []Enemy           `json:"enemies"`
	Encounters []Encounter       `json:"encounters"`
	Images     map[string]string `json:"images,omitempty"`

	// DeletedIds carries the full tombstone set so devices that only ever
	// talk to the cloud still learn about deletions.
	DeletedIds []Tombstone `json:"deletedIds"`

	AppSettings map[string]any `json:"appSettings,omitempty"`

	Timestamp int64  `json:"timestamp"`
	Version   int    `json:"version"`
	AppName   string `json:"appName"`
}
