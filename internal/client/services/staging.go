package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/myid/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/myid/internal/common"
)

// ErrStagingVerify means a staged value did not read back as written.
var ErrStagingVerify = errors.New("staged value verification failed")

// transition is a set of writes and deletes applied in two phases:
//
//  1. every new value is written under staging/<key> together with the
//     delete list, and read back;
//  2. the commit marker staging/_commit is written, after which the
//     transition is applied: staged values are copied to their keys, the
//     deleted keys are removed and the staging keys are dropped, marker last.
//
// Until the marker exists an interrupted transition is discarded by
// recover; afterwards it is rolled forward. Applying is idempotent.
type transition struct {
	writes  map[string][]byte
	deletes map[string]struct{}
}

func newTransition() *transition {
	return &transition{writes: map[string][]byte{}, deletes: map[string]struct{}{}}
}

func (t *transition) set(key string, value []byte) {
	delete(t.deletes, key)
	t.writes[key] = value
}

func (t *transition) setJSON(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	t.set(key, b)
	return nil
}

// delete schedules key for removal unless it is also written.
func (t *transition) delete(key string) {
	if _, ok := t.writes[key]; ok {
		return
	}
	t.deletes[key] = struct{}{}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *profileStore) runTransition(ctx context.Context, t *transition) error {
	if err := s.discardStaging(ctx); err != nil {
		return err
	}

	writes := sortedKeys(t.writes)
	for _, k := range writes {
		if len(t.writes[k]) == 0 {
			return fmt.Errorf("%w: empty staged value for %s", common.ErrorInvalidArgument, k)
		}
		if err := s.repo.Set(ctx, stagingPrefix+k, t.writes[k]); err != nil {
			return s.abortStaging(ctx, fmt.Errorf("failed to stage %s: %w", k, err))
		}
	}

	deletes, err := json.Marshal(sortedKeys(t.deletes))
	if err != nil {
		return s.abortStaging(ctx, err)
	}
	if err := s.repo.Set(ctx, stagingDeletes, deletes); err != nil {
		return s.abortStaging(ctx, fmt.Errorf("failed to stage delete list: %w", err))
	}

	for _, k := range writes {
		got, err := s.repo.Get(ctx, stagingPrefix+k)
		if err != nil {
			return s.abortStaging(ctx, fmt.Errorf("failed to verify %s: %w", k, err))
		}
		if !bytes.Equal(got, t.writes[k]) {
			return s.abortStaging(ctx, fmt.Errorf("%w: %s", ErrStagingVerify, k))
		}
	}

	marker, err := json.Marshal(writes)
	if err != nil {
		return s.abortStaging(ctx, err)
	}
	if err := s.repo.Set(ctx, stagingCommit, marker); err != nil {
		return s.abortStaging(ctx, fmt.Errorf("failed to commit staged values: %w", err))
	}

	// Past this point the transition is durable; a failed apply is finished
	// by recover.
	return s.applyStaged(ctx)
}

// abortStaging discards staged values after a failure before the commit
// marker was written and returns cause.
func (s *profileStore) abortStaging(ctx context.Context, cause error) error {
	if err := s.discardStaging(ctx); err != nil {
		s.log.Error(ctx, "failed to discard staged values", "error", err)
	}
	return cause
}

// applyStaged rolls a committed transition forward. It does nothing when no
// commit marker exists.
func (s *profileStore) applyStaged(ctx context.Context) error {
	var writes []string
	found, err := s.readJSON(ctx, stagingCommit, &writes)
	if err != nil || !found {
		return err
	}

	var deletes []string
	if _, err := s.readJSON(ctx, stagingDeletes, &deletes); err != nil {
		return err
	}

	err = metadata.RunBatch(ctx, s.repo, func(ctx context.Context, r metadata.Repository) error {
		for _, k := range writes {
			v, err := r.Get(ctx, stagingPrefix+k)
			if err != nil {
				return err
			}
			if len(v) == 0 {
				continue
			}
			if err := r.Set(ctx, k, v); err != nil {
				return err
			}
			if err := r.Delete(ctx, stagingPrefix+k); err != nil {
				return err
			}
		}
		for _, k := range deletes {
			if err := r.Delete(ctx, k); err != nil {
				return err
			}
		}
		if err := r.Delete(ctx, stagingDeletes); err != nil {
			return err
		}
		return r.Delete(ctx, stagingCommit)
	})
	if err != nil {
		return fmt.Errorf("failed to apply staged values: %w", err)
	}
	return nil
}

// stagingKeys lists every staging key, commit marker first.
func (s *profileStore) stagingKeys(ctx context.Context) ([]string, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list staged values: %w", err)
	}

	var keys []string
	for k := range all {
		if strings.HasPrefix(k, stagingPrefix) && k != stagingCommit {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := all[stagingCommit]; ok {
		keys = append([]string{stagingCommit}, keys...)
	}
	return keys, nil
}

// discardStaging removes an uncommitted transition.
func (s *profileStore) discardStaging(ctx context.Context) error {
	keys, err := s.stagingKeys(ctx)
	if err != nil || len(keys) == 0 {
		return err
	}
	if keys[0] == stagingCommit {
		return fmt.Errorf("%w: committed transition pending", common.ErrorInternal)
	}
	return s.deleteKeys(ctx, keys...)
}

// recover finishes or discards a transition interrupted by a crash or a
// substrate failure.
func (s *profileStore) recover(ctx context.Context) error {
	marker, err := s.repo.Get(ctx, stagingCommit)
	if err != nil {
		return fmt.Errorf("failed to read commit marker: %w", err)
	}
	if marker != nil {
		s.log.Warn(ctx, "rolling forward interrupted transition")
		return s.applyStaged(ctx)
	}

	keys, err := s.stagingKeys(ctx)
	if err != nil || len(keys) == 0 {
		return err
	}
	s.log.Warn(ctx, "discarding uncommitted transition", "keys", len(keys))
	return s.deleteKeys(ctx, keys...)
}
