package common

// Wallet is a user's on-chain wallet, one per user. The mnemonic never
// lands in the document store, only its secret-store reference does.
type Wallet struct {
	UserId    string `json:"userId"`
	Address   string `json:"address"`
	PublicKey string `json:"publicKey,omitempty"`
	SecretId  string `json:"secretId"`
	CreatedAt int64  `json:"createdAt,omitempty"`
}
