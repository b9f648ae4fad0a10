package auth

import (
	"fmt"
	"strconv"
	"strings"
)

// Strategy names accepted in a precedence list.
const (
	KindPAT     = "pat"
	KindPATFile = "pat_file"
	KindApp     = "app"
)

// DefaultPrecedence is the order in which configured strategies win.
var DefaultPrecedence = []string{KindPAT, KindPATFile, KindApp}

// Strategy is the selected way of obtaining a credential.
// It is one of StaticToken, TokenFile or GitHubApp.
type Strategy interface {
	Kind() string
	strategy()
}

// StaticToken authenticates with a personal access token taken verbatim from configuration.
type StaticToken struct {
	Token string
}

// TokenFile authenticates with a token read from Path on every resolution, so rotation is picked up.
type TokenFile struct {
	Path string
}

// GitHubApp authenticates as an App installation.
type GitHubApp struct {
	AppID          int64
	InstallationID int64
	Key            KeySource
}

func (StaticToken) Kind() string { return KindPAT }
func (TokenFile) Kind() string   { return KindPATFile }
func (GitHubApp) Kind() string   { return KindApp }

func (StaticToken) strategy() {}
func (TokenFile) strategy()   {}
func (GitHubApp) strategy()   {}

// Settings are the raw authentication inputs.
type Settings struct {
	PAT     string
	PATFile string

	AppID          string
	InstallationID string
	// PrivateKeyPath is a file path; PrivateKey is inline PEM. KeySource, when set, overrides both.
	PrivateKeyPath string
	PrivateKey     string
	KeySource      KeySource
}

func (s Settings) appFieldsSet() (id, installation, key bool) {
	return strings.TrimSpace(s.AppID) != "",
		strings.TrimSpace(s.InstallationID) != "",
		s.KeySource != nil || strings.TrimSpace(s.PrivateKeyPath) != "" || strings.TrimSpace(s.PrivateKey) != ""
}

// SelectStrategy picks the first configured strategy in precedence order.
// It performs no I/O. A partially configured App is an error when the App is reached, never a
// reason to fall through to the next strategy.
func SelectStrategy(s Settings, precedence []string) (Strategy, error) {
	if len(precedence) == 0 {
		precedence = DefaultPrecedence
	}

	for _, kind := range precedence {
		switch kind {
		case KindPAT:
			if token := strings.TrimSpace(s.PAT); token != "" {
				return StaticToken{Token: token}, nil
			}
		case KindPATFile:
			if path := strings.TrimSpace(s.PATFile); path != "" {
				return TokenFile{Path: path}, nil
			}
		case KindApp:
			hasID, hasInstallation, hasKey := s.appFieldsSet()
			if !hasID && !hasInstallation && !hasKey {
				continue
			}
			return selectApp(s, hasID, hasInstallation, hasKey)
		default:
			return nil, &ConfigError{Field: "precedence", Reason: fmt.Sprintf("unknown strategy %q", kind)}
		}
	}

	return nil, &ConfigError{
		Reason: "no GitHub authentication configured; set GITHUB_PAT, GITHUB_PAT_FILE or " +
			"GITHUB_APP_ID with GITHUB_INSTALLATION_ID and GITHUB_PRIVATE_KEY_PATH",
	}
}

func selectApp(s Settings, hasID, hasInstallation, hasKey bool) (Strategy, error) {
	var missing []string
	if !hasID {
		missing = append(missing, "GITHUB_APP_ID")
	}
	if !hasInstallation {
		missing = append(missing, "GITHUB_INSTALLATION_ID")
	}
	if !hasKey {
		missing = append(missing, "GITHUB_PRIVATE_KEY_PATH")
	}
	if len(missing) > 0 {
		return nil, &ConfigError{
			Field:  "app",
			Reason: "GitHub App authentication is partially configured; missing " + strings.Join(missing, ", "),
		}
	}

	appID, err := parseID("GITHUB_APP_ID", s.AppID)
	if err != nil {
		return nil, err
	}
	installationID, err := parseID("GITHUB_INSTALLATION_ID", s.InstallationID)
	if err != nil {
		return nil, err
	}

	key := s.KeySource
	if key == nil {
		if pem := strings.TrimSpace(s.PrivateKey); pem != "" {
			key = InlineKeySource{PEM: []byte(pem)}
		} else {
			key = FileKeySource{Path: strings.TrimSpace(s.PrivateKeyPath)}
		}
	}

	return GitHubApp{AppID: appID, InstallationID: installationID, Key: key}, nil
}

func parseID(field, raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, &ConfigError{Field: field, Reason: fmt.Sprintf("%q is not an integer", raw)}
	}
	if id <= 0 {
		return 0, &ConfigError{Field: field, Reason: fmt.Sprintf("must be positive, got %d", id)}
	}
	return id, nil
}
