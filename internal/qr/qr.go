// Package qr renders the informational QR code attached to each job at
// submission. The payload is never read back by the pipeline.
package qr

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

const imageSize = 300

type payload struct {
	JobID     string `json:"job_id"`
	Filename  string `json:"filename"`
	Timestamp string `json:"timestamp"`
}

// DataURI encodes {job_id, filename, timestamp} as a PNG QR code and
// returns it as a base64 data URI suitable for embedding directly in
// an <img> tag.
func DataURI(jobID, filename string, now time.Time) (string, error) {
	data, err := json.Marshal(payload{
		JobID:     jobID,
		Filename:  filename,
		Timestamp: now.Format("2006-01-02 15:04:05"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode qr payload: %w", err)
	}

	png, err := qrcode.Encode(string(data), qrcode.Medium, imageSize)
	if err != nil {
		return "", fmt.Errorf("failed to render qr code: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
