package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/myid/internal/client/backup"
	"github.com/dmitrijs2005/myid/internal/client/models"
	"github.com/dmitrijs2005/myid/internal/client/passkey"
	"github.com/dmitrijs2005/myid/internal/common"
	"github.com/dmitrijs2005/myid/internal/logging"
)

// ImportReport describes a completed import.
type ImportReport struct {
	Fields    int
	Encrypted bool
	// Dropped lists schema entries that failed validation.
	Dropped []string
}

// BackupService exports the whole profile, locked values included, and
// restores it. While protection is on and anything is locked, Export needs
// a proof from the enrolled credential.
type BackupService interface {
	Export(ctx context.Context, password string, proof passkey.Proof) ([]byte, error)
	Import(ctx context.Context, data []byte, password string) (ImportReport, error)
}

type backupService struct {
	store      ProfileStore
	locks      *LockManager
	iterations int
	log        logging.Logger
}

// NewBackupService uses backup.DefaultIterations when iterations is zero.
func NewBackupService(store ProfileStore, locks *LockManager, iterations int, log logging.Logger) BackupService {
	if log == nil {
		log = logging.Discard()
	}
	if iterations == 0 {
		iterations = backup.DefaultIterations
	}
	return &backupService{store: store, locks: locks, iterations: iterations, log: log}
}

// authorizeExport checks proof when locked values would leave the device.
func (s *backupService) authorizeExport(ctx context.Context, proof passkey.Proof) error {
	protected, err := s.store.IsProtectionEnabled(ctx)
	if err != nil {
		return err
	}
	if s.locks.Effective(protected).Empty() {
		return nil
	}
	if !proof.Valid() {
		return common.ErrAuthenticationRequired
	}
	ref, err := s.store.CredentialRef(ctx)
	if err != nil {
		return err
	}
	if proof.Ref() != ref {
		return fmt.Errorf("%w: proof belongs to another credential", common.ErrAuthenticationRequired)
	}
	return nil
}

func (s *backupService) Export(ctx context.Context, password string, proof passkey.Proof) ([]byte, error) {
	if err := s.authorizeExport(ctx, proof); err != nil {
		return nil, err
	}

	schema, err := s.store.LoadSchema(ctx)
	if err != nil {
		return nil, err
	}
	values, err := s.store.LoadFields(ctx, schema, nil, nil, true)
	if err != nil {
		return nil, err
	}
	pinned, err := s.store.LoadPinned(ctx)
	if err != nil {
		return nil, err
	}
	qr, err := s.store.LoadUpiQrImage(ctx)
	if err != nil {
		return nil, err
	}
	photo, err := s.store.LoadProfileImage(ctx)
	if err != nil {
		return nil, err
	}
	categories, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}

	data, err := backup.Encrypt(backup.Payload{Profile: backup.Profile{
		UserData:     values,
		ProfileImage: photo,
		PinnedFields: pinned,
		UpiQrImage:   qr,
		Categories:   categories,
	}}, password, backup.WithIterations(s.iterations))
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "profile exported", "fields", len(values))
	return data, nil
}

// Import decodes and validates data completely before the first write, so a
// wrong password or a corrupt file changes nothing. The profile and the
// cleared lock sets are then written in one staged transition, in the
// current protection mode.
func (s *backupService) Import(ctx context.Context, data []byte, password string) (ImportReport, error) {
	var report ImportReport

	payload, err := backup.Decrypt(data, password)
	if err != nil {
		return report, err
	}
	report.Encrypted = backup.IsEnvelope(data)

	var schema *models.Schema
	if len(payload.Profile.Categories) > 0 && string(payload.Profile.Categories) != "null" {
		parsed, parseReport, err := models.ParseSchema(payload.Profile.Categories)
		if err != nil {
			return report, fmt.Errorf("%w: categories: %v", backup.ErrMalformed, err)
		}
		schema = &parsed
		report.Dropped = parseReport.Dropped
	}
	pinned := models.NormalizePinned(payload.Profile.PinnedFields)

	if err := s.store.ReplaceProfile(ctx, ProfileContents{
		Fields:       payload.Profile.UserData,
		Pinned:       pinned,
		UpiQrImage:   payload.Profile.UpiQrImage,
		ProfileImage: payload.Profile.ProfileImage,
		Schema:       schema,
	}); err != nil {
		return report, err
	}
	if err := s.locks.Load(ctx); err != nil {
		return report, err
	}

	report.Fields = len(payload.Profile.UserData)
	s.log.Info(ctx, "profile imported", "fields", report.Fields, "encrypted", report.Encrypted, "dropped", len(report.Dropped))
	return report, nil
}
