package models

import "strings"

// localStorage keys written by the portal.
const (
	AppStorageKey   = "mars1.portal.data.v1"
	TimerStorageKey = "mars1.portal.timer.v1"
)

// PersistedState is the part of the portal's stored records the smoke run checks.
// AppRaw is the raw application record, used for byte-identity across reloads.
type PersistedState struct {
	FullName    string   `json:"fullName"`
	CurrentStep int      `json:"currentStep"`
	TimerStart  *float64 `json:"timerStart"`
	AppRaw      string   `json:"appRaw"`
}

// ExportOutcome is what the page instrumentation observed while exporting.
type ExportOutcome struct {
	BlobCount     int    `json:"blobCount"`
	BlobSize      int64  `json:"blobSize"`
	DownloadName  string `json:"downloadName"`
	Alert         string `json:"alert"`
	LibraryLoaded bool   `json:"libraryLoaded"`
}

// ExportExtension is the required extension of the exported document.
const ExportExtension = ".docx"

// Produced reports a successful blob outcome.
func (o ExportOutcome) Produced() bool {
	return o.BlobCount > 0 && o.BlobSize > 0 && strings.HasSuffix(o.DownloadName, ExportExtension)
}

// Alerted reports that the page raised an alert instead of exporting.
func (o ExportOutcome) Alerted() bool {
	return o.Alert != ""
}

// Terminal reports whether either terminal outcome has been observed.
func (o ExportOutcome) Terminal() bool {
	return o.Produced() || o.Alerted()
}
