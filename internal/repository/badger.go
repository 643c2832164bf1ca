package repository

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"

	"github.com/RoeeEidan/Chain-Prices/internal/models"
)

const (
	pointValueSize  = 17
	pruneCommitSize = 10_000
)

// BadgerRepo is an embedded series store. Keys are
// <namespace>/<asset>/<ts big-endian> so a prefix scan yields one asset's
// points in timestamp order.
type BadgerRepo struct {
	db  *badger.DB
	ns  string
	ttl time.Duration
}

var _ SeriesStore = (*BadgerRepo)(nil)

type BadgerOption func(*BadgerRepo)

// WithTTL expires entries after d in addition to explicit pruning.
func WithTTL(d time.Duration) BadgerOption {
	return func(r *BadgerRepo) { r.ttl = d }
}

// OpenBadger opens (or creates) a store at dir. An empty dir opens an
// in-memory instance.
func OpenBadger(dir, namespace string, opts ...BadgerOption) (*BadgerRepo, error) {
	options := badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR)
	if dir == "" {
		options = options.WithInMemory(true)
	}
	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger %q: %w", dir, err)
	}
	log.WithFields(log.Fields{"component": "badger", "dir": dir, "namespace": namespace}).Info("DB open")

	r := &BadgerRepo{db: db, ns: namespace}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

func (r *BadgerRepo) assetPrefix(assetID string) []byte {
	return []byte(r.ns + "/" + assetID + "/")
}

func (r *BadgerRepo) key(assetID string, ts int64) []byte {
	k := r.assetPrefix(assetID)
	return binary.BigEndian.AppendUint64(k, uint64(ts))
}

func parseTs(key []byte) (int64, error) {
	if len(key) < 8 {
		return 0, fmt.Errorf("malformed key %q", key)
	}
	return int64(binary.BigEndian.Uint64(key[len(key)-8:])), nil
}

func encodePoint(p models.PricePoint) []byte {
	buf := make([]byte, pointValueSize)
	binary.BigEndian.PutUint64(buf[0:8], math.Float64bits(p.Price))
	if p.MarketCap != nil {
		buf[8] = 1
		binary.BigEndian.PutUint64(buf[9:17], math.Float64bits(*p.MarketCap))
	}
	return buf
}

func decodePoint(assetID string, ts int64, v []byte) (models.PricePoint, error) {
	if len(v) != pointValueSize {
		return models.PricePoint{}, fmt.Errorf("malformed value for %s@%d", assetID, ts)
	}
	p := models.PricePoint{
		AssetID:     assetID,
		TimestampMs: ts,
		Price:       math.Float64frombits(binary.BigEndian.Uint64(v[0:8])),
	}
	if v[8] == 1 {
		mc := math.Float64frombits(binary.BigEndian.Uint64(v[9:17]))
		p.MarketCap = &mc
	}
	return p, nil
}

func (r *BadgerRepo) UpsertBatch(_ context.Context, points []models.PricePoint) ([]models.PricePoint, error) {
	if err := validateBatch(points); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, nil
	}

	txn := r.db.NewTransaction(true)
	defer txn.Discard()

	var unprocessed []models.PricePoint
	for _, p := range points {
		e := badger.NewEntry(r.key(p.AssetID, p.TimestampMs), encodePoint(p))
		if r.ttl > 0 {
			e = e.WithTTL(r.ttl)
		}
		if err := txn.SetEntry(e); err != nil {
			unprocessed = append(unprocessed, p)
		}
	}
	if err := txn.Commit(); err != nil {
		return points, fmt.Errorf("commit: %w", err)
	}
	return unprocessed, nil
}

func (r *BadgerRepo) QueryRange(_ context.Context, q RangeQuery) (Page, error) {
	lo, hi, limit, err := q.bounds()
	if err != nil {
		return Page{}, err
	}

	var points []models.PricePoint
	err = r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = r.assetPrefix(q.AssetID)
		iter := txn.NewIterator(opts)
		defer iter.Close()

		limitKey := r.key(q.AssetID, hi)
		for iter.Seek(r.key(q.AssetID, lo)); iter.Valid(); iter.Next() {
			item := iter.Item()
			if bytes.Compare(item.Key(), limitKey) > 0 || len(points) > limit {
				break
			}
			ts, err := parseTs(item.Key())
			if err != nil {
				return err
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			p, err := decodePoint(q.AssetID, ts, value)
			if err != nil {
				return err
			}
			points = append(points, p)
		}
		return nil
	})
	if err != nil {
		return Page{}, err
	}
	return pageOf(points, limit), nil
}

// Prune deletes every point older than beforeMs, committing in chunks.
func (r *BadgerRepo) Prune(_ context.Context, beforeMs int64) (int64, error) {
	var stale [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(r.ns + "/")
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := iter.Item().KeyCopy(nil)
			ts, err := parseTs(key)
			if err != nil {
				return err
			}
			if ts < beforeMs {
				stale = append(stale, key)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	var n int64
	txn := r.db.NewTransaction(true)
	defer func() { txn.Discard() }()
	for i, key := range stale {
		if err := txn.Delete(key); err != nil {
			if !errors.Is(err, badger.ErrTxnTooBig) {
				return n, err
			}
			if err := txn.Commit(); err != nil {
				return n, err
			}
			n = int64(i)
			txn = r.db.NewTransaction(true)
			if err := txn.Delete(key); err != nil {
				return n, err
			}
		}
		if (i+1)%pruneCommitSize == 0 {
			if err := txn.Commit(); err != nil {
				return n, err
			}
			n = int64(i + 1)
			txn = r.db.NewTransaction(true)
		}
	}
	if err := txn.Commit(); err != nil {
		return n, err
	}
	return int64(len(stale)), nil
}

func (r *BadgerRepo) Ping(context.Context) error {
	if r.db.IsClosed() {
		return errors.New("badger: closed")
	}
	return nil
}

// RunValueLogGC reclaims value log space until nothing is left to rewrite.
func (r *BadgerRepo) RunValueLogGC() {
	for {
		if err := r.db.RunValueLogGC(0.5); err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) {
				log.WithField("component", "badger").Warnf("value log GC: %v", err)
			}
			return
		}
	}
}

func (r *BadgerRepo) Close() error { return r.db.Close() }
