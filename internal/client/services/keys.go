package services

// Metadata keys owned by the profile store and the lock manager.
const (
	keyCredentialRef = "passkey_credential_id"
	keyStartup       = "passkey_on_startup"
	keyDataKey       = "passkey_data_key"

	keyUserDataEnc = "user_data_enc"
	keyPinnedEnc   = "pinned_fields_enc"
	keyUpiEnc      = "upi_qr_image_enc"
	keySchemaEnc   = "profile_config_enc"

	keyUserData     = "user_data"
	keyPinned       = "pinned_fields"
	keyUpi          = "upi_qr_image"
	keySchema       = "profile_config"
	keyProfileImage = "profile_image"

	keyProfileID = "profile_id"

	keySectionLocks = "section_locks"
	keyFieldLocks   = "field_locks"

	stagingPrefix  = "staging/"
	stagingCommit  = stagingPrefix + "_commit"
	stagingDeletes = stagingPrefix + "_deletes"
)

var encryptedKeys = []string{keyUserDataEnc, keyPinnedEnc, keyUpiEnc, keySchemaEnc}

var plainKeys = []string{keyUserData, keyPinned, keyUpi, keySchema}

var lockKeys = []string{keySectionLocks, keyFieldLocks}
