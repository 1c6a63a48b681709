package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/BaSui01/flowengine/workflow"
)

const (
	badgerWorkflowPrefix  = "wf/"
	badgerExecutionPrefix = "ex/"
)

// BadgerStore is an embedded key-value backend. Listing scans the key
// prefix; executions are filtered and ordered in memory.
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// BadgerOptions selects the badger data directory.
type BadgerOptions struct {
	Dir      string
	InMemory bool
}

// OpenBadgerStore opens (or creates) a badger database.
func OpenBadgerStore(opts BadgerOptions, logger *zap.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Dir == "" {
			return nil, fmt.Errorf("%w: badger directory is required", ErrInvalidInput)
		}
		bopts = badger.DefaultOptions(opts.Dir)
	}
	bopts = bopts.WithLogger(badgerLogger{logger.Sugar()}).WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return NewBadgerStore(db, logger), nil
}

// NewBadgerStore wraps an opened database. Close closes db.
func NewBadgerStore(db *badger.DB, logger *zap.Logger) *BadgerStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BadgerStore{
		db:     db,
		logger: logger.With(zap.String("component", "store"), zap.String("backend", string(TypeBadger))),
	}
}

func (s *BadgerStore) SaveWorkflow(_ context.Context, def *workflow.Definition) error {
	c, err := stampDefinition(def)
	if err != nil {
		return err
	}
	key := []byte(badgerWorkflowPrefix + c.ID)

	return s.db.Update(func(txn *badger.Txn) error {
		if def.CreatedAt.IsZero() {
			prev, err := getJSON(txn, key, decodeWorkflow)
			switch {
			case err == nil:
				c.CreatedAt = prev.CreatedAt
			case !errors.Is(err, ErrNotFound):
				return err
			}
		}
		data, err := encodeWorkflow(c)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

func (s *BadgerStore) GetWorkflow(_ context.Context, id string) (*workflow.Definition, error) {
	var def *workflow.Definition
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		def, err = getJSON(txn, []byte(badgerWorkflowPrefix+id), decodeWorkflow)
		return err
	})
	return def, err
}

func (s *BadgerStore) ListWorkflows(_ context.Context) ([]*workflow.Definition, error) {
	out, err := scanPrefix(s.db, []byte(badgerWorkflowPrefix), decodeWorkflow)
	if err != nil {
		return nil, err
	}
	sortDefinitions(out)
	return out, nil
}

func (s *BadgerStore) DeleteWorkflow(_ context.Context, id string) error {
	key := []byte(badgerWorkflowPrefix + id)
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
}

func (s *BadgerStore) SaveExecution(_ context.Context, exec *workflow.Execution) error {
	if err := checkExecution(exec); err != nil {
		return err
	}
	data, err := encodeExecution(exec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerExecutionPrefix+exec.ID), data)
	})
}

func (s *BadgerStore) GetExecution(_ context.Context, id string) (*workflow.Execution, error) {
	var exec *workflow.Execution
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		exec, err = getJSON(txn, []byte(badgerExecutionPrefix+id), decodeExecution)
		return err
	})
	return exec, err
}

func (s *BadgerStore) ListExecutions(_ context.Context, filter ExecutionFilter) ([]*workflow.Execution, error) {
	all, err := scanPrefix(s.db, []byte(badgerExecutionPrefix), decodeExecution)
	if err != nil {
		return nil, err
	}
	return filter.apply(all), nil
}

func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func getJSON[T any](txn *badger.Txn, key []byte, decode func([]byte) (*T, error)) (*T, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var out *T
	err = item.Value(func(val []byte) error {
		var derr error
		out, derr = decode(val)
		return derr
	})
	return out, err
}

func scanPrefix[T any](db *badger.DB, prefix []byte, decode func([]byte) (*T, error)) ([]*T, error) {
	var out []*T
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				v, err := decode(val)
				if err != nil {
					return err
				}
				out = append(out, v)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// badgerLogger routes badger's printf-style logging to zap.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.s.Errorf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.s.Warnf(f, v...) }
func (l badgerLogger) Infof(f string, v ...interface{})    { l.s.Infof(f, v...) }
func (l badgerLogger) Debugf(f string, v ...interface{})   { l.s.Debugf(f, v...) }
