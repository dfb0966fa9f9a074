package raven

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type scheme string

const (
	schemeHTTP  scheme = "http"
	schemeHTTPS scheme = "https"
)

func (scheme scheme) defaultPort() int {
	switch scheme {
	case schemeHTTPS:
		return 443
	case schemeHTTP:
		return 80
	default:
		return 80
	}
}

// DsnParseError represents an error that occurs if a DSN cannot be parsed.
type DsnParseError struct {
	Message string
}

func (e DsnParseError) Error() string {
	return "[Raven] DsnParseError: " + e.Message
}

// Dsn is used as the remote address source to client transport.
type Dsn struct {
	scheme    scheme
	publicKey string
	secretKey string
	host      string
	port      int
	path      string
	projectID string
}

// NewDsn creates a Dsn by parsing rawURL. Most users will never call this
// function directly. It is provided for use in custom RequesterFactory
// implementations.
func NewDsn(rawURL string) (*Dsn, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, &DsnParseError{fmt.Sprintf("invalid url: %v", err)}
	}

	var scheme scheme
	switch parsedURL.Scheme {
	case "http":
		scheme = schemeHTTP
	case "https":
		scheme = schemeHTTPS
	default:
		return nil, &DsnParseError{"invalid scheme"}
	}

	publicKey := parsedURL.User.Username()
	if publicKey == "" {
		return nil, &DsnParseError{"empty username"}
	}

	var secretKey string
	if parsedSecretKey, ok := parsedURL.User.Password(); ok {
		secretKey = parsedSecretKey
	}

	host := parsedURL.Hostname()
	if host == "" {
		return nil, &DsnParseError{"empty host"}
	}

	port := scheme.defaultPort()
	if parsedURL.Port() != "" {
		port, err = strconv.Atoi(parsedURL.Port())
		if err != nil {
			return nil, &DsnParseError{"invalid port"}
		}
	}

	if len(parsedURL.Path) == 0 || parsedURL.Path == "/" {
		return nil, &DsnParseError{"empty project id"}
	}
	pathSegments := strings.Split(parsedURL.Path[1:], "/")
	projectID := pathSegments[len(pathSegments)-1]
	if projectID == "" {
		return nil, &DsnParseError{"empty project id"}
	}
	if _, err := strconv.ParseUint(projectID, 10, 64); err != nil {
		return nil, &DsnParseError{"invalid project id"}
	}

	var path string
	if len(pathSegments) > 1 {
		path = "/" + strings.Join(pathSegments[0:len(pathSegments)-1], "/")
	}

	return &Dsn{
		scheme:    scheme,
		publicKey: publicKey,
		secretKey: secretKey,
		host:      host,
		port:      port,
		path:      path,
		projectID: projectID,
	}, nil
}

// String formats Dsn struct into a valid string url.
func (dsn Dsn) String() string {
	var url string
	url += fmt.Sprintf("%s://%s", dsn.scheme, dsn.publicKey)
	if dsn.secretKey != "" {
		url += fmt.Sprintf(":%s", dsn.secretKey)
	}
	url += fmt.Sprintf("@%s", dsn.host)
	if dsn.port != dsn.scheme.defaultPort() {
		url += fmt.Sprintf(":%d", dsn.port)
	}
	if dsn.path != "" {
		url += dsn.path
	}
	url += fmt.Sprintf("/%s", dsn.projectID)
	return url
}

func (dsn Dsn) PublicKey() string {
	return dsn.publicKey
}

func (dsn Dsn) SecretKey() string {
	return dsn.secretKey
}

func (dsn Dsn) ProjectID() string {
	return dsn.projectID
}

func (dsn Dsn) Host() string {
	return dsn.host
}

func (dsn Dsn) baseURL() string {
	var rawURL string
	rawURL += fmt.Sprintf("%s://%s", dsn.scheme, dsn.host)
	if dsn.port != dsn.scheme.defaultPort() {
		rawURL += fmt.Sprintf(":%d", dsn.port)
	}
	return rawURL + dsn.path
}

// StoreAPIURL returns the URL of the store endpoint of the project
// associated with the DSN.
func (dsn Dsn) StoreAPIURL() *url.URL {
	parsedURL, _ := url.Parse(fmt.Sprintf("%s/api/%s/store/", dsn.baseURL(), dsn.projectID))
	return parsedURL
}

// FeedbackAPIURL returns the URL of the user feedback endpoint for the given
// event.
func (dsn Dsn) FeedbackAPIURL(eventID string) *url.URL {
	parsedURL, _ := url.Parse(dsn.baseURL() + "/api/embed/error-page/")
	query := url.Values{}
	query.Set("dsn", dsn.String())
	query.Set("eventId", eventID)
	parsedURL.RawQuery = query.Encode()
	return parsedURL
}

// Origin returns the scheme, host and port of the DSN, used as the Referer of
// feedback submissions.
func (dsn Dsn) Origin() string {
	origin := fmt.Sprintf("%s://%s", dsn.scheme, dsn.host)
	if dsn.port != dsn.scheme.defaultPort() {
		origin += fmt.Sprintf(":%d", dsn.port)
	}
	return origin
}

// AuthHeader returns the value of the X-Sentry-Auth header for a request
// made at the given time.
func (dsn Dsn) AuthHeader(client string, timestamp time.Time) string {
	auth := fmt.Sprintf("Sentry sentry_version=%s, sentry_client=%s, "+
		"sentry_timestamp=%d, sentry_key=%s", apiVersion, client, timestamp.Unix(), dsn.publicKey)
	if dsn.secretKey != "" {
		auth = fmt.Sprintf("%s, sentry_secret=%s", auth, dsn.secretKey)
	}
	return auth
}

// MarshalJSON converts the Dsn struct to JSON.
func (dsn Dsn) MarshalJSON() ([]byte, error) {
	return json.Marshal(dsn.String())
}

// UnmarshalJSON converts JSON data to the Dsn struct.
func (dsn *Dsn) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	newDsn, err := NewDsn(str)
	if err != nil {
		return err
	}
	*dsn = *newDsn
	return nil
}
