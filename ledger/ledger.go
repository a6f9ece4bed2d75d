// Package ledger keeps a persistent record of training runs and the outcome of
// every unit they processed.
//
// Records are JSON values in a BoltDB file. Unit keys are
// "<run id>/<model tag>/<dgp>/<dataset>" so a run's units can be read back
// with a prefix scan.
package ledger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/YuminosukeSato/dgpbench/pkg/errors"
)

const (
	runsBucket  = "runs"
	unitsBucket = "units"
)

// Status is the outcome of one unit.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// UnitRecord describes one processed (model tag, DGP, dataset) unit.
type UnitRecord struct {
	RunID      string                 `json:"run_id"`
	ModelTag   string                 `json:"model_tag"`
	DGP        string                 `json:"dgp"`
	Dataset    string                 `json:"dataset"`
	Status     Status                 `json:"status"`
	BestParams map[string]interface{} `json:"best_params,omitempty"`
	// BestScore is nil when no cross-validation ran.
	BestScore *float64      `json:"best_score,omitempty"`
	TestMSE   float64       `json:"test_mse"`
	TestR2    float64       `json:"test_r2"`
	Duration  time.Duration `json:"duration_ns"`
	Error     string        `json:"error,omitempty"`
	Time      time.Time     `json:"time"`
}

// Key returns the unit's key inside the units bucket.
func (r UnitRecord) Key() []byte {
	return []byte(strings.Join([]string{r.RunID, r.ModelTag, r.DGP, r.Dataset}, "/"))
}

// RunRecord summarises a run.
type RunRecord struct {
	ID         string    `json:"id"`
	ModelTag   string    `json:"model_tag"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Completed  int       `json:"completed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
}

// Ledger is a BoltDB backed run ledger. It is safe for concurrent use.
type Ledger struct {
	db *bbolt.DB
}

// Open opens or creates the ledger file at path, creating parent
// directories as needed. BoltDB holds an exclusive file lock; a second
// process fails after one second.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating ledger directory for %s", path)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening ledger %s", path)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range []string{runsBucket, unitsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return errors.Wrapf(err, "create %s bucket", b)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Ledger{db: db}, nil
}

// Close releases the file lock.
func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

// PutRun stores or replaces a run record.
func (l *Ledger) PutRun(r RunRecord) error {
	return l.put(runsBucket, []byte(r.ID), r)
}

// Run returns the run with the given ID; ok is false when it does not exist.
func (l *Ledger) Run(id string) (r RunRecord, ok bool, err error) {
	err = l.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(runsBucket)).Get([]byte(id))
		if v == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(v, &r)
	})
	if err != nil {
		return RunRecord{}, false, errors.Wrapf(err, "reading run %s", id)
	}
	return r, ok, nil
}

// RecordUnit stores a unit record, replacing an earlier record of the same
// unit in the same run.
func (l *Ledger) RecordUnit(r UnitRecord) error {
	if r.RunID == "" {
		return errors.NewValidationError("run_id", "must not be empty", r.RunID)
	}
	return l.put(unitsBucket, r.Key(), r)
}

// Units returns the unit records of a run in key order.
func (l *Ledger) Units(runID string) ([]UnitRecord, error) {
	var out []UnitRecord
	prefix := []byte(runID + "/")
	err := l.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(unitsBucket)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var r UnitRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return errors.Wrapf(err, "decoding unit %s", k)
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

func (l *Ledger) put(bucket string, key []byte, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "marshal %s record", bucket)
	}
	return l.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put(key, data)
	})
}
