package auth

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/adgram/adgram/config"
	"github.com/adgram/adgram/internal/common"
	"github.com/adgram/adgram/misc"
	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"
)

const (
	ApiKeyHeader = `x-apikey`

	ctxUserKey = `__user`
)

var (
	ErrNoToken      = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
	ErrInvalidID    = errors.New("invalid user id")
)

// Identity is what the external identity provider vouches for.
type Identity struct {
	Id       string `json:"id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	ChatId   string `json:"chatId,omitempty"`
}

// Verifier checks a bearer token with whoever issued it.
type Verifier interface {
	Verify(token string) (*Identity, error)
}

type Auth struct {
	db  *bolt.DB
	cfg *config.Config

	verifier Verifier
}

func New(db *bolt.DB, cfg *config.Config) *Auth {
	a := &Auth{db: db, cfg: cfg}
	if cfg.Sandbox {
		a.verifier = sandboxVerifier{}
	} else {
		a.verifier = &httpVerifier{cfg: cfg}
	}
	return a
}

// SetVerifier swaps the token verifier; tests use this to inject fakes.
func (a *Auth) SetVerifier(v Verifier) {
	a.verifier = v
}

// VerifyUser authenticates the bearer token and threads the resolved
// user through the gin context. The user doc is upserted on first
// sight so the rest of the system can resolve display data by id.
func (a *Auth) VerifyUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			misc.WriteJSON(c, 401, misc.StatusErr(ErrNoToken.Error()))
			c.Abort()
			return
		}

		id, err := a.verifier.Verify(token)
		if err != nil || id == nil || id.Id == "" {
			misc.WriteJSON(c, 401, misc.StatusErr(ErrInvalidToken.Error()))
			c.Abort()
			return
		}

		u, err := a.upsertUser(id)
		if err != nil {
			misc.WriteJSON(c, 500, misc.StatusErr(err.Error()))
			c.Abort()
			return
		}

		c.Set(ctxUserKey, u)
		c.Next()
	}
}

// CheckAdminKey gates trusted-scheduler endpoints behind the shared
// api key header.
func (a *Auth) CheckAdminKey(c *gin.Context) bool {
	if a.cfg.AdminKey == "" || c.GetHeader(ApiKeyHeader) != a.cfg.AdminKey {
		misc.WriteJSON(c, 403, misc.StatusErr("forbidden"))
		c.Abort()
		return false
	}
	return true
}

func GetCtxUser(c *gin.Context) *common.User {
	if v, ok := c.Get(ctxUserKey); ok {
		if u, ok := v.(*common.User); ok {
			return u
		}
	}
	return nil
}

func (a *Auth) GetUserTx(tx *bolt.Tx, id string) *common.User {
	var u common.User
	if misc.GetTxJson(tx, a.cfg.Bucket.User, id, &u) == nil && u.Id != "" {
		return &u
	}
	return nil
}

func (a *Auth) upsertUser(id *Identity) (*common.User, error) {
	var u *common.User
	err := a.db.Update(func(tx *bolt.Tx) error {
		u = a.GetUserTx(tx, id.Id)
		if u == nil {
			u = &common.User{
				Id:        id.Id,
				CreatedAt: time.Now().Unix(),
			}
		}
		u.Username, u.Name = id.Username, id.Name
		if id.ChatId != "" {
			u.ChatId = id.ChatId
		}
		return misc.PutTxJson(tx, a.cfg.Bucket.User, u.Id, u)
	})
	return u, err
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	return ""
}

type httpVerifier struct {
	cfg *config.Config
}

func (v *httpVerifier) Verify(token string) (*Identity, error) {
	body, _ := json.Marshal(map[string]string{"token": token})

	var resp struct {
		OK       bool `json:"ok"`
		Identity `json:"identity"`
	}
	if err := misc.Request("POST", v.cfg.Identity.Endpoint, string(body), &resp); err != nil {
		return nil, err
	}
	if !resp.OK || resp.Id == "" {
		return nil, ErrInvalidToken
	}

	id := resp.Identity
	return &id, nil
}

// sandboxVerifier trusts the token as "<id>[:<username>]". Test and
// local dev only.
type sandboxVerifier struct{}

func (sandboxVerifier) Verify(token string) (*Identity, error) {
	parts := strings.SplitN(token, ":", 2)
	if parts[0] == "" {
		return nil, ErrInvalidToken
	}
	id := &Identity{Id: parts[0], ChatId: "chat-" + parts[0]}
	if len(parts) == 2 {
		id.Username = parts[1]
	}
	return id, nil
}
