package remote

// record is the wire shape of one sync row, keyed remotely by
// (user_id, data_type). Uniqueness is enforced on that pair; upserts
// replace the row in place.
type record struct {
	UserID        string `json:"user_id"`
	DataType      string `json:"data_type"`
	EncryptedData string `json:"encrypted_data"`
	IV            string `json:"iv"`
	Salt          string `json:"salt"`
	DataHash      string `json:"data_hash"`
	LastModified  int64  `json:"last_modified"`
	UpdatedAt     string `json:"updated_at"`
}

// Downloaded is a decrypted sync record returned by Download.
type Downloaded struct {
	Plaintext    string
	LastModified int64
}
