package authz

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"grantdesk/api/internal/gapi"
)

// User is the identity a strategy verifies. BearerToken is the user's own
// OAuth token and is only present in self-check deployments.
type User struct {
	Email       string
	BearerToken string
}

// Strategy answers "may user U operate on resource R". A false return with
// a nil error is a denial; an error is an infrastructure failure and must
// not be read as a denial.
type Strategy interface {
	Verify(ctx context.Context, user User, resourceID string) (bool, error)
}

// clientSource is the slice of gapi.Provider the strategies need.
type clientSource interface {
	Drive(ctx context.Context) (*drive.Service, error)
	DriveForToken(ctx context.Context, token string) (*drive.Service, error)
}

// SelfCheck probes the resource's metadata with the user's own token.
// Drive answering 200 proves access; 403 and 404 are denials (Drive hides
// resources the caller cannot see behind 404).
type SelfCheck struct {
	clients clientSource
}

func NewSelfCheck(clients clientSource) *SelfCheck {
	return &SelfCheck{clients: clients}
}

func (s *SelfCheck) Verify(ctx context.Context, user User, resourceID string) (bool, error) {
	if user.BearerToken == "" {
		return false, nil
	}
	svc, err := s.clients.DriveForToken(ctx, user.BearerToken)
	if err != nil {
		return false, err
	}
	err = gapi.Retry(ctx, func() error {
		_, callErr := svc.Files.Get(resourceID).
			Fields("id").
			SupportsAllDrives(true).
			Context(ctx).Do()
		return callErr
	})
	if err == nil {
		return true, nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusForbidden || apiErr.Code == http.StatusNotFound) {
		return false, nil
	}
	return false, gapi.WrapError("self-check "+resourceID, err)
}

// PermissionList enumerates the resource's sharing permissions through the
// service account and matches the user's email or domain against them.
// Used when users carry identity-only tokens.
type PermissionList struct {
	clients clientSource
}

func NewPermissionList(clients clientSource) *PermissionList {
	return &PermissionList{clients: clients}
}

func (s *PermissionList) Verify(ctx context.Context, user User, resourceID string) (bool, error) {
	svc, err := s.clients.Drive(ctx)
	if err != nil {
		return false, err
	}

	email := strings.ToLower(strings.TrimSpace(user.Email))
	domain := ""
	if at := strings.LastIndex(email, "@"); at >= 0 {
		domain = email[at+1:]
	}

	allowed := false
	call := svc.Permissions.List(resourceID).
		Fields("nextPageToken, permissions(type, emailAddress, domain)").
		SupportsAllDrives(true).
		Context(ctx)
	err = gapi.Retry(ctx, func() error {
		return call.Pages(ctx, func(page *drive.PermissionList) error {
			for _, perm := range page.Permissions {
				switch perm.Type {
				case "user":
					if strings.EqualFold(perm.EmailAddress, email) {
						allowed = true
					}
				case "domain":
					if domain != "" && strings.EqualFold(perm.Domain, domain) {
						allowed = true
					}
				case "anyone":
					allowed = true
				}
			}
			return nil
		})
	})
	if err != nil {
		return false, gapi.WrapError("list permissions "+resourceID, err)
	}
	return allowed, nil
}
