package services

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/myid/internal/client/backup"
	"github.com/dmitrijs2005/myid/internal/client/models"
	"github.com/dmitrijs2005/myid/internal/client/passkey"
	"github.com/dmitrijs2005/myid/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/myid/internal/common"
	"github.com/dmitrijs2005/myid/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackup(t *testing.T) (BackupService, ProfileStore, *LockManager, *metadata.MemoryRepository) {
	t.Helper()
	repo := metadata.NewMemoryRepository()
	store := NewProfileStore(repo, nil)
	locks := NewLockManager(repo, nil)
	return NewBackupService(store, locks, cryptox.PBKDF2MinIterations, nil), store, locks, repo
}

func TestBackupService_ExportImportAcrossModes(t *testing.T) {
	ctx := context.Background()
	src, srcStore, srcLocks, _ := newBackup(t)
	g, ref := enroll(t, "cred-1")

	require.NoError(t, srcStore.EnableProtection(ctx, ref))
	require.NoError(t, srcStore.SaveFields(ctx, sample))
	require.NoError(t, srcStore.SavePinned(ctx, []string{models.KeyEmail}))
	require.NoError(t, srcStore.SaveUpiQrImage(ctx, "data:qr"))
	require.NoError(t, srcLocks.LockSection(ctx, "documents"))

	_, err := src.Export(ctx, "correct-horse", passkey.Proof{})
	require.ErrorIs(t, err, common.ErrAuthenticationRequired)
	other, otherRef := enroll(t, "cred-2")
	_, err = src.Export(ctx, "correct-horse", proofFor(t, other, otherRef))
	require.ErrorIs(t, err, common.ErrAuthenticationRequired)

	data, err := src.Export(ctx, "correct-horse", proofFor(t, g, ref))
	require.NoError(t, err)
	assert.True(t, backup.IsEnvelope(data))

	dst, dstStore, dstLocks, dstRepo := newBackup(t)
	require.NoError(t, dstLocks.LockField(ctx, models.KeyEmail))

	_, err = dst.Import(ctx, data, "wrong")
	require.ErrorIs(t, err, backup.ErrDecryptFailed)
	assert.Equal(t, []string{models.KeyEmail}, dstLocks.LockedFields())
	assert.NotContains(t, rawKeys(t, dstRepo), keyUserData)

	report, err := dst.Import(ctx, data, "correct-horse")
	require.NoError(t, err)
	assert.True(t, report.Encrypted)
	assert.Equal(t, len(sample), report.Fields)
	assert.Empty(t, dstLocks.LockedFields())

	// locked values are part of the export
	got, err := dstStore.LoadFields(ctx, models.DefaultSchema(), nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, sample, got)

	pinned, err := dstStore.LoadPinned(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{models.KeyEmail}, pinned)

	qr, err := dstStore.LoadUpiQrImage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "data:qr", qr)
}

func TestBackupService_ImportLegacyIntoProtectedStore(t *testing.T) {
	ctx := context.Background()
	svc, store, _, repo := newBackup(t)
	_, ref := enroll(t, "cred-1")
	require.NoError(t, store.EnableProtection(ctx, ref))

	legacy := []byte(`{"profile":{"userData":{"firstName":"Ada","lastName":"Lovelace"},"pinnedFields":["lastName","firstName"],"categories":[{"id":"me","title":"Me","fields":[{"key":"firstName"},{"key":"lastName"},{"key":"firstName"}]}]}}`)

	report, err := svc.Import(ctx, legacy, "")
	require.NoError(t, err)
	assert.False(t, report.Encrypted)
	assert.Len(t, report.Dropped, 1)

	raw := rawKeys(t, repo)
	assert.Contains(t, raw, keyUserDataEnc)
	assert.NotContains(t, raw, keyUserData)
	assert.NotContains(t, raw[keyUserDataEnc], "Lovelace")

	pinned, err := store.LoadPinned(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{models.FullNameKey}, pinned)

	schema, err := store.LoadSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"firstName", "lastName"}, schema.FieldKeys())
}

func TestBackupService_ImportMalformedChangesNothing(t *testing.T) {
	ctx := context.Background()
	svc, store, _, repo := newBackup(t)
	require.NoError(t, store.SaveFields(ctx, sample))
	before := rawKeys(t, repo)

	for _, in := range []string{`nope`, `{"users":[]}`, `{"profile":{"categories":"x"}}`} {
		_, err := svc.Import(ctx, []byte(in), "pw")
		require.ErrorIs(t, err, backup.ErrMalformed, in)
	}
	assert.Equal(t, before, rawKeys(t, repo))
}

func TestBackupService_ExportWithoutLocksNeedsNoProof(t *testing.T) {
	ctx := context.Background()
	svc, store, locks, _ := newBackup(t)
	require.NoError(t, store.SaveFields(ctx, sample))

	// locks are inert while unprotected
	require.NoError(t, locks.LockField(ctx, models.KeyEmail))
	_, err := svc.Export(ctx, "pw", passkey.Proof{})
	require.NoError(t, err)

	_, ref := enroll(t, "cred-1")
	require.NoError(t, store.EnableProtection(ctx, ref))
	require.NoError(t, locks.Clear(ctx))
	_, err = svc.Export(ctx, "pw", passkey.Proof{})
	require.NoError(t, err)
}

const replacement = `{"profile":{"userData":{"email":"new@example.com"},"pinnedFields":["phoneNumber"]}}`

func faultyBackup(t *testing.T) (BackupService, *faultyRepo, *metadata.MemoryRepository) {
	t.Helper()
	faulty, inner := seededFaulty(t)
	require.NoError(t, NewLockManager(inner, nil).LockField(context.Background(), models.KeyEmail))

	store := NewProfileStore(faulty, nil)
	locks := NewLockManager(faulty, nil)
	require.NoError(t, locks.Load(context.Background()))
	return NewBackupService(store, locks, cryptox.PBKDF2MinIterations, nil), faulty, inner
}

func TestBackupService_ImportFailureKeepsOldProfile(t *testing.T) {
	ctx := context.Background()
	svc, faulty, inner := faultyBackup(t)
	before := rawKeys(t, inner)

	faulty.failSet[stagingPrefix+keyPinned] = true
	_, err := svc.Import(ctx, []byte(replacement), "")
	require.ErrorIs(t, err, errBoom)

	assert.Equal(t, before, rawKeys(t, inner))

	store := NewProfileStore(inner, nil)
	got, err := store.LoadFields(ctx, models.DefaultSchema(), nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, sample, got)

	locks := NewLockManager(inner, nil)
	require.NoError(t, locks.Load(ctx))
	assert.Equal(t, []string{models.KeyEmail}, locks.LockedFields())
}

func TestBackupService_InterruptedImportRollsForward(t *testing.T) {
	ctx := context.Background()
	svc, faulty, inner := faultyBackup(t)

	// staging succeeds, applying the pinned list does not
	faulty.failSet[keyPinned] = true
	_, err := svc.Import(ctx, []byte(replacement), "")
	require.ErrorIs(t, err, errBoom)

	faulty.heal()
	store := NewProfileStore(inner, nil)
	require.NoError(t, store.Recover(ctx))
	assert.Empty(t, stagingLeft(t, inner))

	got, err := store.LoadFields(ctx, models.DefaultSchema(), nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{models.KeyEmail: "new@example.com"}, got)

	pinned, err := store.LoadPinned(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"phoneNumber"}, pinned)

	locks := NewLockManager(inner, nil)
	require.NoError(t, locks.Load(ctx))
	assert.Empty(t, locks.LockedFields())
}
