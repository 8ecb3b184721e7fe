// internal/infra/config/config.go
package config

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// CartBackend selects which Gateway implementation the session is wired to.
const (
	CartBackendAPI       = "api"       // storefront REST backend (default)
	CartBackendFirestore = "firestore" // direct Firestore access (ops/local)
)

// Config はアプリケーション全体の環境変数設定を保持します。
type Config struct {
	GCPProjectID string
	GCPCreds     string

	// Storefront REST backend
	StorefrontAPIBaseURL string
	StorefrontAPIKey     string
	// StorefrontAPIKeySecret is the Secret Manager secret id used as a
	// fallback when STOREFRONT_API_KEY is not set.
	StorefrontAPIKeySecret string

	// Firestore (direct cart access + Firebase auth)
	FirestoreProjectID       string
	FirestoreCredentialsFile string
	FirebaseProjectID        string

	// Engine
	CartBackend string
	SyncPacing  time.Duration
}

// Load は環境変数を読み込み Config を返します。
func Load() *Config {
	defaultProject := getenvDefault("GCP_PROJECT_ID", "medicart-development")

	cfg := &Config{
		GCPProjectID: defaultProject,
		GCPCreds:     os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),

		StorefrontAPIBaseURL:   getenvDefault("STOREFRONT_API_BASE_URL", "http://localhost:8080"),
		StorefrontAPIKey:       os.Getenv("STOREFRONT_API_KEY"),
		StorefrontAPIKeySecret: getenvDefault("STOREFRONT_API_KEY_SECRET", "storefront-api-key"),

		FirestoreProjectID:       getenvDefault("FIRESTORE_PROJECT_ID", defaultProject),
		FirestoreCredentialsFile: os.Getenv("FIRESTORE_CREDENTIALS_FILE"),
		FirebaseProjectID:        getenvDefault("FIREBASE_PROJECT_ID", defaultProject),

		CartBackend: getenvDefault("CART_BACKEND", CartBackendAPI),
		SyncPacing:  getenvDurationMS("CART_SYNC_PACING_MS", 100*time.Millisecond),
	}

	return cfg
}

// ResolveStorefrontAPIKey returns the API key: env first, Secret Manager as
// fallback. Empty secret id disables the fallback (key stays "").
func (c *Config) ResolveStorefrontAPIKey(ctx context.Context) (string, error) {
	if c == nil {
		return "", errors.New("config: nil")
	}
	if k := strings.TrimSpace(c.StorefrontAPIKey); k != "" {
		return k, nil
	}

	secretID := strings.TrimSpace(c.StorefrontAPIKeySecret)
	prj := strings.TrimSpace(c.GCPProjectID)
	if secretID == "" || prj == "" {
		return "", nil
	}

	var opts []option.ClientOption
	if c.GCPCreds != "" {
		opts = append(opts, option.WithCredentialsFile(c.GCPCreds))
	}

	sm, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return "", errors.New("config: secretmanager client: " + err.Error())
	}
	defer sm.Close()

	name := "projects/" + prj + "/secrets/" + secretID + "/versions/latest"
	resp, err := sm.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", errors.New("config: AccessSecretVersion failed (" + name + "): " + err.Error())
	}
	if resp == nil || resp.Payload == nil {
		return "", errors.New("config: empty secret payload (" + name + ")")
	}

	return strings.TrimSpace(string(resp.Payload.Data)), nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDurationMS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms < 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
