package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/dmitrijs2005/myid/internal/client/models"
	"github.com/dmitrijs2005/myid/internal/client/passkey"
	"github.com/dmitrijs2005/myid/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/myid/internal/common"
	"github.com/dmitrijs2005/myid/internal/cryptox"
	"github.com/dmitrijs2005/myid/internal/logging"
)

// ValueStatus tells why LookupFieldValue did or did not return a value.
type ValueStatus int

const (
	ValueAbsent ValueStatus = iota
	ValuePresent
	ValueUndecryptable
)

func (s ValueStatus) String() string {
	switch s {
	case ValuePresent:
		return "present"
	case ValueUndecryptable:
		return "undecryptable"
	default:
		return "absent"
	}
}

// FieldValue is the result of LookupFieldValue.
type FieldValue struct {
	Value  string
	Status ValueStatus
}

// FieldsResult is the detailed result of a field load. Locked lists keys
// withheld because they are locked, Skipped lists keys whose stored value
// could not be decrypted. Both are sorted.
type FieldsResult struct {
	Values  map[string]string
	Locked  []string
	Skipped []string
}

// ProfileContents is a whole profile as restored by an import. A nil Schema
// keeps the stored layout.
type ProfileContents struct {
	Fields       map[string]string
	Pinned       []string
	UpiQrImage   string
	ProfileImage string
	Schema       *models.Schema
}

// ProfileStore owns the on-device profile. It decides, per category,
// whether the plain or the encrypted representation is authoritative and
// moves data between them when protection is switched.
//
// Load operations never fail for expected conditions: missing data, a
// missing data key or undecryptable entries yield empty values. Only
// substrate errors and invalid arguments are returned.
type ProfileStore interface {
	IsProtectionEnabled(ctx context.Context) (bool, error)
	CredentialRef(ctx context.Context) (passkey.Ref, error)
	StartupRequired(ctx context.Context) (bool, error)
	SetStartupRequired(ctx context.Context, required bool) error

	SaveFields(ctx context.Context, values map[string]string) error
	LoadFields(ctx context.Context, schema models.Schema, lockedSections, lockedFields []string, includeLocked bool) (map[string]string, error)
	LoadFieldsDetailed(ctx context.Context, schema models.Schema, lockedSections, lockedFields []string, includeLocked bool) (FieldsResult, error)
	LoadFieldValue(ctx context.Context, key string) (string, error)
	LookupFieldValue(ctx context.Context, key string) (FieldValue, error)
	HasAnyStoredData(ctx context.Context) (bool, error)

	SavePinned(ctx context.Context, keys []string) error
	LoadPinned(ctx context.Context) ([]string, error)
	SaveUpiQrImage(ctx context.Context, dataURL string) error
	LoadUpiQrImage(ctx context.Context) (string, error)
	SaveSchema(ctx context.Context, schema models.Schema) error
	LoadSchema(ctx context.Context) (models.Schema, error)
	SaveProfileImage(ctx context.Context, dataURL string) error
	LoadProfileImage(ctx context.Context) (string, error)

	// ReplaceProfile swaps every category for c and drops both lock sets in
	// one staged transition, in the current protection mode.
	ReplaceProfile(ctx context.Context, c ProfileContents) error

	EnableProtection(ctx context.Context, ref passkey.Ref) error
	DisableProtection(ctx context.Context, proof passkey.Proof) error
	ClearAll(ctx context.Context) error
	Recover(ctx context.Context) error

	// SealPayload encrypts v under the data key when protection is on and
	// returns nil otherwise.
	SealPayload(ctx context.Context, v any) (*cryptox.Sealed, error)
	OpenPayload(ctx context.Context, sealed cryptox.Sealed, v any) error
}

type profileStore struct {
	mu   sync.Mutex
	repo metadata.Repository
	log  logging.Logger
}

// NewProfileStore binds a store to repo. A nil log discards output.
func NewProfileStore(repo metadata.Repository, log logging.Logger) ProfileStore {
	if log == nil {
		log = logging.Discard()
	}
	return &profileStore{repo: repo, log: log}
}

func (s *profileStore) protected(ctx context.Context) (bool, error) {
	ref, err := s.repo.Get(ctx, keyCredentialRef)
	if err != nil {
		return false, fmt.Errorf("failed to read protection state: %w", err)
	}
	return len(ref) > 0, nil
}

func (s *profileStore) IsProtectionEnabled(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protected(ctx)
}

func (s *profileStore) CredentialRef(ctx context.Context) (passkey.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credentialRef(ctx)
}

func (s *profileStore) credentialRef(ctx context.Context) (passkey.Ref, error) {
	ref, err := s.repo.Get(ctx, keyCredentialRef)
	if err != nil {
		return "", fmt.Errorf("failed to read credential reference: %w", err)
	}
	return passkey.Ref(ref), nil
}

func (s *profileStore) StartupRequired(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.repo.Get(ctx, keyStartup)
	if err != nil {
		return false, fmt.Errorf("failed to read startup flag: %w", err)
	}
	return string(v) == "true", nil
}

func (s *profileStore) SetStartupRequired(ctx context.Context, required bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Set(ctx, keyStartup, []byte(fmt.Sprint(required))); err != nil {
		return fmt.Errorf("failed to save startup flag: %w", err)
	}
	return nil
}

// dataKey returns the persisted data key, creating it when create is set.
// A nil key with a nil error means there is no usable key.
func (s *profileStore) dataKey(ctx context.Context, create bool) ([]byte, error) {
	raw, err := s.repo.Get(ctx, keyDataKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read data key: %w", err)
	}

	if len(raw) > 0 {
		key, err := cryptox.DecodeKey(string(raw))
		if err == nil {
			return key, nil
		}
		if create {
			return nil, fmt.Errorf("%w: stored data key: %v", common.ErrorMalformedData, err)
		}
		s.log.Warn(ctx, "stored data key is unusable", "error", err)
		return nil, nil
	}

	if !create {
		return nil, nil
	}

	key, err := cryptox.GenerateDataKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}
	if err := s.repo.Set(ctx, keyDataKey, []byte(cryptox.EncodeKey(key))); err != nil {
		return nil, fmt.Errorf("failed to save data key: %w", err)
	}
	s.log.Info(ctx, "data key created")
	return key, nil
}

// readJSON decodes key into v. found is false when the key is absent.
func (s *profileStore) readJSON(ctx context.Context, key string, v any) (found bool, err error) {
	raw, err := s.repo.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("%w: %s: %v", common.ErrorMalformedData, key, err)
	}
	return true, nil
}

// readSealed is readJSON for a single sealed value.
func (s *profileStore) readSealed(ctx context.Context, key string) (cryptox.Sealed, bool, error) {
	var sealed cryptox.Sealed
	found, err := s.readJSON(ctx, key, &sealed)
	return sealed, found, err
}

func (s *profileStore) writeJSON(ctx context.Context, r metadata.Repository, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := r.Set(ctx, key, b); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// writeProtected stores value under the encrypted key and removes the plain
// one in a single batch.
func (s *profileStore) writeProtected(ctx context.Context, encKey, plainKey string, value any) error {
	return metadata.RunBatch(ctx, s.repo, func(ctx context.Context, r metadata.Repository) error {
		if err := s.writeJSON(ctx, r, encKey, value); err != nil {
			return err
		}
		if err := r.Delete(ctx, plainKey); err != nil {
			return fmt.Errorf("failed to remove %s: %w", plainKey, err)
		}
		return nil
	})
}

func (s *profileStore) deleteKeys(ctx context.Context, keys ...string) error {
	return metadata.RunBatch(ctx, s.repo, func(ctx context.Context, r metadata.Repository) error {
		for _, k := range keys {
			if err := r.Delete(ctx, k); err != nil {
				return fmt.Errorf("failed to remove %s: %w", k, err)
			}
		}
		return nil
	})
}

func (s *profileStore) SaveFields(ctx context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if values == nil {
		values = map[string]string{}
	}

	protected, err := s.protected(ctx)
	if err != nil {
		return err
	}

	if !protected {
		return s.writeJSON(ctx, s.repo, keyUserData, values)
	}

	key, err := s.dataKey(ctx, true)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	enc := make(map[string]cryptox.Sealed, len(values))
	for k, v := range values {
		sealed, err := cryptox.SealString(v, key)
		if err != nil {
			return fmt.Errorf("failed to encrypt field %s: %w", k, err)
		}
		enc[k] = sealed
	}

	return s.writeProtected(ctx, keyUserDataEnc, keyUserData, enc)
}

func (s *profileStore) LoadFields(ctx context.Context, schema models.Schema, lockedSections, lockedFields []string, includeLocked bool) (map[string]string, error) {
	res, err := s.LoadFieldsDetailed(ctx, schema, lockedSections, lockedFields, includeLocked)
	if err != nil {
		return nil, err
	}
	return res.Values, nil
}

// LoadFieldsDetailed loads the field map. Keys locked individually or through
// the section schema assigns them to are withheld unless includeLocked is
// set. When protected, each entry is decrypted on its own and failures only
// drop that entry.
func (s *profileStore) LoadFieldsDetailed(ctx context.Context, schema models.Schema, lockedSections, lockedFields []string, includeLocked bool) (FieldsResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := FieldsResult{Values: map[string]string{}}
	locked := lockPredicate(schema, lockedSections, lockedFields)
	if includeLocked {
		locked = func(string) bool { return false }
	}

	protected, err := s.protected(ctx)
	if err != nil {
		return res, err
	}

	if !protected {
		plain, err := s.plainFields(ctx)
		if err != nil {
			return res, err
		}
		for k, v := range plain {
			if locked(k) {
				res.Locked = append(res.Locked, k)
				continue
			}
			res.Values[k] = v
		}
		sort.Strings(res.Locked)
		return res, nil
	}

	enc, err := s.encryptedFields(ctx)
	if err != nil {
		return res, err
	}
	if len(enc) == 0 {
		return res, nil
	}

	key, err := s.dataKey(ctx, false)
	if err != nil {
		return res, err
	}
	defer common.WipeByteArray(key)

	for k, raw := range enc {
		if locked(k) {
			res.Locked = append(res.Locked, k)
			continue
		}
		v, ok := openField(raw, key)
		if !ok {
			res.Skipped = append(res.Skipped, k)
			continue
		}
		res.Values[k] = v
	}

	sort.Strings(res.Locked)
	sort.Strings(res.Skipped)
	if len(res.Skipped) > 0 {
		s.log.Warn(ctx, "encrypted fields skipped", "keys", res.Skipped)
	}
	return res, nil
}

func lockPredicate(schema models.Schema, lockedSections, lockedFields []string) func(string) bool {
	return func(key string) bool {
		if slices.Contains(lockedFields, key) {
			return true
		}
		sec, ok := schema.SectionOf(key)
		return ok && slices.Contains(lockedSections, sec)
	}
}

// plainFields returns the plain field map. A malformed map reads as empty.
func (s *profileStore) plainFields(ctx context.Context) (map[string]string, error) {
	values := map[string]string{}
	if _, err := s.readJSON(ctx, keyUserData, &values); err != nil {
		if !errors.Is(err, common.ErrorMalformedData) {
			return nil, err
		}
		s.log.Warn(ctx, "plain field map unreadable", "error", err)
		return map[string]string{}, nil
	}
	return values, nil
}

// encryptedFields returns the raw entries of the encrypted field map. A
// malformed map reads as empty; malformed entries are left for openField
// to reject.
func (s *profileStore) encryptedFields(ctx context.Context) (map[string]json.RawMessage, error) {
	enc := map[string]json.RawMessage{}
	if _, err := s.readJSON(ctx, keyUserDataEnc, &enc); err != nil {
		if !errors.Is(err, common.ErrorMalformedData) {
			return nil, err
		}
		s.log.Warn(ctx, "encrypted field map unreadable", "error", err)
		return map[string]json.RawMessage{}, nil
	}
	return enc, nil
}

func openField(raw json.RawMessage, key []byte) (string, bool) {
	if key == nil {
		return "", false
	}
	var sealed cryptox.Sealed
	if err := json.Unmarshal(raw, &sealed); err != nil {
		return "", false
	}
	v, err := cryptox.OpenString(sealed, key)
	if err != nil {
		return "", false
	}
	return v, true
}

// LoadFieldValue returns one field, or "" when it is absent or unreadable.
func (s *profileStore) LoadFieldValue(ctx context.Context, key string) (string, error) {
	fv, err := s.LookupFieldValue(ctx, key)
	return fv.Value, err
}

func (s *profileStore) LookupFieldValue(ctx context.Context, key string) (FieldValue, error) {
	if key == "" {
		return FieldValue{}, fmt.Errorf("%w: empty field key", common.ErrorInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	protected, err := s.protected(ctx)
	if err != nil {
		return FieldValue{}, err
	}

	if !protected {
		plain, err := s.plainFields(ctx)
		if err != nil {
			return FieldValue{}, err
		}
		v, ok := plain[key]
		if !ok {
			return FieldValue{}, nil
		}
		return FieldValue{Value: v, Status: ValuePresent}, nil
	}

	enc, err := s.encryptedFields(ctx)
	if err != nil {
		return FieldValue{}, err
	}
	raw, ok := enc[key]
	if !ok {
		return FieldValue{}, nil
	}

	dk, err := s.dataKey(ctx, false)
	if err != nil {
		return FieldValue{}, err
	}
	defer common.WipeByteArray(dk)

	v, ok := openField(raw, dk)
	if !ok {
		s.log.Warn(ctx, "encrypted field unreadable", "key", key)
		return FieldValue{Status: ValueUndecryptable}, nil
	}
	return FieldValue{Value: v, Status: ValuePresent}, nil
}

// HasAnyStoredData reports whether the authoritative field map has entries.
// Nothing is decrypted.
func (s *profileStore) HasAnyStoredData(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	protected, err := s.protected(ctx)
	if err != nil {
		return false, err
	}
	if protected {
		enc, err := s.encryptedFields(ctx)
		return len(enc) > 0, err
	}
	plain, err := s.plainFields(ctx)
	return len(plain) > 0, err
}

func (s *profileStore) SavePinned(ctx context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys = models.NormalizePinned(keys)

	protected, err := s.protected(ctx)
	if err != nil {
		return err
	}
	if !protected {
		return s.writeJSON(ctx, s.repo, keyPinned, keys)
	}
	if len(keys) == 0 {
		return s.deleteKeys(ctx, keyPinnedEnc, keyPinned)
	}

	dk, err := s.dataKey(ctx, true)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(dk)

	sealed, err := cryptox.SealJSON(keys, dk)
	if err != nil {
		return fmt.Errorf("failed to encrypt pinned fields: %w", err)
	}
	return s.writeProtected(ctx, keyPinnedEnc, keyPinned, sealed)
}

// LoadPinned returns the normalized pinned list, empty on any read failure.
func (s *profileStore) LoadPinned(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	ok, err := s.loadCategory(ctx, keyPinned, keyPinnedEnc, &keys)
	if err != nil || !ok {
		return []string{}, err
	}
	return models.NormalizePinned(keys), nil
}

// loadCategory decodes the authoritative representation of a JSON category
// into v. ok is false when it is absent or unreadable.
func (s *profileStore) loadCategory(ctx context.Context, plainKey, encKey string, v any) (ok bool, err error) {
	protected, err := s.protected(ctx)
	if err != nil {
		return false, err
	}

	if !protected {
		found, err := s.readJSON(ctx, plainKey, v)
		if errors.Is(err, common.ErrorMalformedData) {
			s.log.Warn(ctx, "plain value unreadable", "key", plainKey, "error", err)
			return false, nil
		}
		return found, err
	}

	raw, err := s.openCategory(ctx, encKey)
	if err != nil || raw == nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		s.log.Warn(ctx, "encrypted value unreadable", "key", encKey, "error", err)
		return false, nil
	}
	return true, nil
}

// openCategory decrypts a sealed category. It returns nil for an absent or
// undecryptable value.
func (s *profileStore) openCategory(ctx context.Context, encKey string) ([]byte, error) {
	sealed, found, err := s.readSealed(ctx, encKey)
	if errors.Is(err, common.ErrorMalformedData) {
		s.log.Warn(ctx, "encrypted value unreadable", "key", encKey, "error", err)
		return nil, nil
	}
	if err != nil || !found {
		return nil, err
	}

	dk, err := s.dataKey(ctx, false)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(dk)
	if dk == nil {
		s.log.Warn(ctx, "no data key for encrypted value", "key", encKey)
		return nil, nil
	}

	raw, err := cryptox.OpenBytes(sealed, dk)
	if err != nil {
		s.log.Warn(ctx, "encrypted value unreadable", "key", encKey, "error", err)
		return nil, nil
	}
	return raw, nil
}

func (s *profileStore) SaveUpiQrImage(ctx context.Context, dataURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	protected, err := s.protected(ctx)
	if err != nil {
		return err
	}
	if dataURL == "" {
		return s.deleteKeys(ctx, keyUpiEnc, keyUpi)
	}
	if !protected {
		if err := s.repo.Set(ctx, keyUpi, []byte(dataURL)); err != nil {
			return fmt.Errorf("failed to save %s: %w", keyUpi, err)
		}
		return nil
	}

	dk, err := s.dataKey(ctx, true)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(dk)

	sealed, err := cryptox.SealString(dataURL, dk)
	if err != nil {
		return fmt.Errorf("failed to encrypt QR image: %w", err)
	}
	return s.writeProtected(ctx, keyUpiEnc, keyUpi, sealed)
}

func (s *profileStore) LoadUpiQrImage(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	protected, err := s.protected(ctx)
	if err != nil {
		return "", err
	}
	if !protected {
		v, err := s.repo.Get(ctx, keyUpi)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", keyUpi, err)
		}
		return string(v), nil
	}

	raw, err := s.openCategory(ctx, keyUpiEnc)
	return string(raw), err
}

func (s *profileStore) SaveSchema(ctx context.Context, schema models.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if schema.Version == 0 {
		schema.Version = models.SchemaVersion
	}

	protected, err := s.protected(ctx)
	if err != nil {
		return err
	}
	if !protected {
		return s.writeJSON(ctx, s.repo, keySchema, schema)
	}

	dk, err := s.dataKey(ctx, true)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(dk)

	sealed, err := cryptox.SealJSON(schema, dk)
	if err != nil {
		return fmt.Errorf("failed to encrypt schema: %w", err)
	}
	return s.writeProtected(ctx, keySchemaEnc, keySchema, sealed)
}

// LoadSchema returns the stored schema, or the default one when none was
// saved or it cannot be read. Malformed sections and fields are dropped.
func (s *profileStore) LoadSchema(ctx context.Context) (models.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	protected, err := s.protected(ctx)
	if err != nil {
		return models.Schema{}, err
	}

	var raw []byte
	if protected {
		raw, err = s.openCategory(ctx, keySchemaEnc)
	} else {
		raw, err = s.repo.Get(ctx, keySchema)
	}
	if err != nil {
		return models.Schema{}, err
	}
	if len(raw) == 0 {
		return models.DefaultSchema(), nil
	}

	schema, report, err := models.ParseSchema(raw)
	if err != nil {
		s.log.Warn(ctx, "stored schema unreadable, using default", "error", err)
		return models.DefaultSchema(), nil
	}
	if len(report.Dropped) > 0 {
		s.log.Warn(ctx, "schema entries dropped", "dropped", report.Dropped)
	}
	return schema, nil
}

func (s *profileStore) SaveProfileImage(ctx context.Context, dataURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dataURL == "" {
		return s.deleteKeys(ctx, keyProfileImage)
	}
	if err := s.repo.Set(ctx, keyProfileImage, []byte(dataURL)); err != nil {
		return fmt.Errorf("failed to save %s: %w", keyProfileImage, err)
	}
	return nil
}

func (s *profileStore) LoadProfileImage(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.repo.Get(ctx, keyProfileImage)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", keyProfileImage, err)
	}
	return string(v), nil
}

// EnableProtection persists ref and moves every non-empty category to its
// encrypted representation. Data already encrypted is kept; plain field
// values win over encrypted ones with the same key.
func (s *profileStore) EnableProtection(ctx context.Context, ref passkey.Ref) error {
	if ref == "" {
		return fmt.Errorf("%w: empty credential reference", common.ErrorInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.recover(ctx); err != nil {
		return err
	}

	t := newTransition()
	t.set(keyCredentialRef, []byte(ref))

	dk, err := s.stagedDataKey(ctx, t)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(dk)

	migrated, err := s.stageEncryption(ctx, t, dk)
	if err != nil {
		return err
	}

	if err := s.runTransition(ctx, t); err != nil {
		return fmt.Errorf("failed to enable protection: %w", err)
	}

	s.log.Info(ctx, "protection enabled", "credential", ref, "migrated", migrated)
	return nil
}

// stagedDataKey returns the data key, staging a fresh one in t when none
// is stored yet.
func (s *profileStore) stagedDataKey(ctx context.Context, t *transition) ([]byte, error) {
	dk, err := s.dataKey(ctx, false)
	if err != nil || dk != nil {
		return dk, err
	}

	raw, err := s.repo.Get(ctx, keyDataKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read data key: %w", err)
	}
	if len(raw) > 0 {
		return nil, fmt.Errorf("%w: stored data key is unusable", common.ErrorMalformedData)
	}
	if dk, err = cryptox.GenerateDataKey(); err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}
	t.set(keyDataKey, []byte(cryptox.EncodeKey(dk)))
	return dk, nil
}

// stageEncryption adds the plain to encrypted migration of every category
// to t and returns the names of the categories that carried data.
func (s *profileStore) stageEncryption(ctx context.Context, t *transition, dk []byte) ([]string, error) {
	var migrated []string

	plain := map[string]string{}
	found, err := s.readJSON(ctx, keyUserData, &plain)
	if errors.Is(err, common.ErrorMalformedData) {
		s.log.Warn(ctx, "unreadable plain field map dropped", "error", err)
		plain, err = map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(plain) > 0 {
		enc, err := s.encryptedFields(ctx)
		if err != nil {
			return nil, err
		}
		for k, v := range plain {
			sealed, err := cryptox.SealString(v, dk)
			if err != nil {
				return nil, fmt.Errorf("failed to encrypt field %s: %w", k, err)
			}
			b, err := json.Marshal(sealed)
			if err != nil {
				return nil, err
			}
			enc[k] = b
		}
		if err := t.setJSON(keyUserDataEnc, enc); err != nil {
			return nil, err
		}
		migrated = append(migrated, "fields")
	}
	if found {
		t.delete(keyUserData)
	}

	var pinned []string
	found, err = s.readJSON(ctx, keyPinned, &pinned)
	if errors.Is(err, common.ErrorMalformedData) {
		s.log.Warn(ctx, "unreadable pinned list dropped", "error", err)
		pinned, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	if pinned = models.NormalizePinned(pinned); len(pinned) > 0 {
		sealed, err := cryptox.SealJSON(pinned, dk)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt pinned fields: %w", err)
		}
		if err := t.setJSON(keyPinnedEnc, sealed); err != nil {
			return nil, err
		}
		migrated = append(migrated, "pinned")
	}
	if found {
		t.delete(keyPinned)
	}

	for _, c := range []struct{ name, plain, enc string }{
		{"qr", keyUpi, keyUpiEnc},
		{"schema", keySchema, keySchemaEnc},
	} {
		raw, err := s.repo.Get(ctx, c.plain)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", c.plain, err)
		}
		if raw == nil {
			continue
		}
		t.delete(c.plain)
		if len(raw) == 0 {
			continue
		}
		sealed, err := cryptox.SealBytes(raw, dk)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt %s: %w", c.name, err)
		}
		if err := t.setJSON(c.enc, sealed); err != nil {
			return nil, err
		}
		migrated = append(migrated, c.name)
	}

	return migrated, nil
}

func (s *profileStore) ReplaceProfile(ctx context.Context, c ProfileContents) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.recover(ctx); err != nil {
		return err
	}
	protected, err := s.protected(ctx)
	if err != nil {
		return err
	}

	fields := c.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	pinned := models.NormalizePinned(c.Pinned)
	var schema *models.Schema
	if c.Schema != nil {
		cp := *c.Schema
		if cp.Version == 0 {
			cp.Version = models.SchemaVersion
		}
		schema = &cp
	}

	t := newTransition()
	if protected {
		err = s.stageProtectedProfile(ctx, t, fields, pinned, c.UpiQrImage, schema)
	} else {
		err = stagePlainProfile(t, fields, pinned, c.UpiQrImage, schema)
	}
	if err != nil {
		return err
	}

	if c.ProfileImage != "" {
		t.set(keyProfileImage, []byte(c.ProfileImage))
	} else {
		t.delete(keyProfileImage)
	}
	for _, k := range lockKeys {
		t.delete(k)
	}

	if err := s.runTransition(ctx, t); err != nil {
		return fmt.Errorf("failed to replace profile: %w", err)
	}
	s.log.Info(ctx, "profile replaced", "fields", len(fields), "protected", protected)
	return nil
}

func stagePlainProfile(t *transition, fields map[string]string, pinned []string, qr string, schema *models.Schema) error {
	if err := t.setJSON(keyUserData, fields); err != nil {
		return err
	}
	if err := t.setJSON(keyPinned, pinned); err != nil {
		return err
	}
	if qr != "" {
		t.set(keyUpi, []byte(qr))
	} else {
		t.delete(keyUpi)
	}
	if schema != nil {
		return t.setJSON(keySchema, schema)
	}
	return nil
}

func (s *profileStore) stageProtectedProfile(ctx context.Context, t *transition, fields map[string]string, pinned []string, qr string, schema *models.Schema) error {
	dk, err := s.stagedDataKey(ctx, t)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(dk)

	enc := make(map[string]cryptox.Sealed, len(fields))
	for k, v := range fields {
		sealed, err := cryptox.SealString(v, dk)
		if err != nil {
			return fmt.Errorf("failed to encrypt field %s: %w", k, err)
		}
		enc[k] = sealed
	}
	if err := t.setJSON(keyUserDataEnc, enc); err != nil {
		return err
	}
	t.delete(keyUserData)

	t.delete(keyPinned)
	if len(pinned) > 0 {
		sealed, err := cryptox.SealJSON(pinned, dk)
		if err != nil {
			return fmt.Errorf("failed to encrypt pinned fields: %w", err)
		}
		if err := t.setJSON(keyPinnedEnc, sealed); err != nil {
			return err
		}
	} else {
		t.delete(keyPinnedEnc)
	}

	t.delete(keyUpi)
	if qr != "" {
		sealed, err := cryptox.SealString(qr, dk)
		if err != nil {
			return fmt.Errorf("failed to encrypt QR image: %w", err)
		}
		if err := t.setJSON(keyUpiEnc, sealed); err != nil {
			return err
		}
	} else {
		t.delete(keyUpiEnc)
	}

	if schema != nil {
		sealed, err := cryptox.SealJSON(schema, dk)
		if err != nil {
			return fmt.Errorf("failed to encrypt schema: %w", err)
		}
		if err := t.setJSON(keySchemaEnc, sealed); err != nil {
			return err
		}
		t.delete(keySchema)
	}
	return nil
}

// DisableProtection requires a proof from the stored credential. It
// decrypts every category into memory, then replaces all encrypted
// artifacts, the data key, the credential reference, the startup flag and
// the lock sets with the plain representations in one staged transition.
// Entries that cannot be decrypted are dropped.
func (s *profileStore) DisableProtection(ctx context.Context, proof passkey.Proof) error {
	if !proof.Valid() {
		return common.ErrAuthenticationRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.recover(ctx); err != nil {
		return err
	}

	ref, err := s.credentialRef(ctx)
	if err != nil {
		return err
	}
	if ref == "" {
		return nil
	}
	if proof.Ref() != ref {
		return fmt.Errorf("%w: proof belongs to another credential", common.ErrAuthenticationRequired)
	}

	t := newTransition()
	dropped, err := s.stageDecryption(ctx, t)
	if err != nil {
		return err
	}

	for _, k := range encryptedKeys {
		t.delete(k)
	}
	for _, k := range lockKeys {
		t.delete(k)
	}
	t.delete(keyDataKey)
	t.delete(keyCredentialRef)
	t.delete(keyStartup)

	if err := s.runTransition(ctx, t); err != nil {
		return fmt.Errorf("failed to disable protection: %w", err)
	}

	if len(dropped) > 0 {
		s.log.Warn(ctx, "undecryptable data dropped while disabling protection", "keys", dropped)
	}
	s.log.Info(ctx, "protection disabled", "credential", ref)
	return nil
}

// stageDecryption adds the encrypted to plain migration to t and returns the
// keys of dropped entries.
func (s *profileStore) stageDecryption(ctx context.Context, t *transition) ([]string, error) {
	var dropped []string

	enc, err := s.encryptedFields(ctx)
	if err != nil {
		return nil, err
	}

	dk, err := s.dataKey(ctx, false)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(dk)

	if dk == nil {
		for _, k := range encryptedKeys {
			raw, err := s.repo.Get(ctx, k)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", k, err)
			}
			if len(raw) > 0 {
				return nil, fmt.Errorf("%w: encrypted data present without a usable data key", common.ErrorMalformedData)
			}
		}
	}

	values := make(map[string]string, len(enc))
	for k, raw := range enc {
		v, ok := openField(raw, dk)
		if !ok {
			dropped = append(dropped, k)
			continue
		}
		values[k] = v
	}
	if err := t.setJSON(keyUserData, values); err != nil {
		return nil, err
	}

	for _, c := range []struct{ plain, enc string }{
		{keyPinned, keyPinnedEnc},
		{keyUpi, keyUpiEnc},
		{keySchema, keySchemaEnc},
	} {
		sealed, found, err := s.readSealed(ctx, c.enc)
		if err != nil && !errors.Is(err, common.ErrorMalformedData) {
			return nil, err
		}
		if !found {
			continue
		}
		raw, oerr := cryptox.OpenBytes(sealed, dk)
		if err != nil || oerr != nil {
			dropped = append(dropped, c.enc)
			continue
		}
		if len(raw) > 0 {
			t.set(c.plain, raw)
		}
	}

	sort.Strings(dropped)
	return dropped, nil
}

// ClearAll removes every representation of every category together with
// the lock sets, the data key, the credential reference and the startup
// flag, whatever the current mode.
func (s *profileStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := append(append(append([]string{}, encryptedKeys...), plainKeys...), lockKeys...)
	keys = append(keys, keyProfileImage, keyProfileID, keyDataKey, keyCredentialRef, keyStartup)

	staged, err := s.stagingKeys(ctx)
	if err != nil {
		return err
	}
	// Staging goes first, commit marker at its head, so an interrupted clear
	// never rolls a transition forward.
	keys = append(staged, keys...)

	if err := s.deleteKeys(ctx, keys...); err != nil {
		return fmt.Errorf("failed to clear profile: %w", err)
	}
	s.log.Info(ctx, "profile cleared")
	return nil
}

func (s *profileStore) Recover(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recover(ctx)
}

func (s *profileStore) SealPayload(ctx context.Context, v any) (*cryptox.Sealed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	protected, err := s.protected(ctx)
	if err != nil || !protected {
		return nil, err
	}

	dk, err := s.dataKey(ctx, true)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(dk)

	sealed, err := cryptox.SealJSON(v, dk)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt payload: %w", err)
	}
	return &sealed, nil
}

// OpenPayload fails with cryptox.ErrDecrypt when there is no usable data key.
func (s *profileStore) OpenPayload(ctx context.Context, sealed cryptox.Sealed, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dk, err := s.dataKey(ctx, false)
	if err != nil {
		return err
	}
	if dk == nil {
		return cryptox.ErrDecrypt
	}
	defer common.WipeByteArray(dk)

	return cryptox.OpenJSON(sealed, dk, v)
}
