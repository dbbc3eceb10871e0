// Package archive stores automation pass reports in a blob store.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"microerp/internal/automation"
	"microerp/internal/blob"
)

// DefaultPrefix roots pass reports in the blob store.
const DefaultPrefix = "automation/passes"

const contentType = "application/json"

var _ automation.ReportArchive = (*Archive)(nil)

// Archive writes one immutable JSON object per pass under
// <prefix>/<YYYY-MM-DD>/<unix-nanos>.json.
type Archive struct {
	store  blob.Store
	prefix string
}

// New wraps store. An empty prefix uses DefaultPrefix.
func New(store blob.Store, prefix string) *Archive {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Archive{store: store, prefix: prefix}
}

// Key returns the key a report is archived under.
func (a *Archive) Key(report automation.PassReport) string {
	return path.Join(a.prefix, report.Today, strconv.FormatInt(report.StartedAt.UnixNano(), 10)+".json")
}

// Archive implements automation.ReportArchive. A key collision, which only
// happens when two processes start a pass in the same nanosecond, gets a
// random suffix.
func (a *Archive) Archive(ctx context.Context, report automation.PassReport) (string, error) {
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode pass report: %w", err)
	}
	key := a.Key(report)
	meta := map[string]string{"today": report.Today, "failures": strconv.Itoa(report.Failures())}
	_, err = a.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{ContentType: contentType, Metadata: meta})
	if errors.Is(err, blob.ErrExists) {
		key = strings.TrimSuffix(key, ".json") + "-" + uuid.NewString()[:8] + ".json"
		_, err = a.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{ContentType: contentType, Metadata: meta})
	}
	if err != nil {
		return "", fmt.Errorf("store pass report %s: %w", key, err)
	}
	return key, nil
}

// List returns the archived report keys for day (YYYY-MM-DD), oldest first.
// An empty day lists every report.
func (a *Archive) List(ctx context.Context, day string) ([]blob.Info, error) {
	prefix := a.prefix + "/"
	if day != "" {
		prefix += day + "/"
	}
	infos, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list pass reports: %w", err)
	}
	return infos, nil
}

// Load reads and decodes the report stored at key.
func (a *Archive) Load(ctx context.Context, key string) (automation.PassReport, error) {
	var report automation.PassReport
	if !strings.HasPrefix(key, a.prefix+"/") {
		return report, fmt.Errorf("load pass report %s: %w", key, blob.ErrNotFound)
	}
	_, rc, err := a.store.Get(ctx, key)
	if err != nil {
		return report, fmt.Errorf("load pass report %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return report, fmt.Errorf("read pass report %s: %w", key, err)
	}
	if err := json.Unmarshal(data, &report); err != nil {
		return report, fmt.Errorf("decode pass report %s: %w", key, err)
	}
	return report, nil
}
