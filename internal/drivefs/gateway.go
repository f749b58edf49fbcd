// Package drivefs wraps the Drive file operations GrantDesk performs under
// its root folder. Every call opts in to shared drives: the root folder is
// assumed to live in one, and queries that omit the flags silently return
// nothing instead of failing.
package drivefs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"grantdesk/api/internal/gapi"
)

const (
	MimeFolder   = "application/vnd.google-apps.folder"
	MimeDocument = "application/vnd.google-apps.document"
	mimeShortcut = "application/vnd.google-apps.shortcut"
)

const fileFields = "id, name, mimeType, webViewLink, parents, shortcutDetails"

// FileInfo is the metadata subset GrantDesk exposes for Drive files.
// ShortcutTarget is set when the file is itself a shortcut.
type FileInfo struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	MimeType       string   `json:"mimeType"`
	URL            string   `json:"url,omitempty"`
	Parents        []string `json:"parents,omitempty"`
	ShortcutTarget string   `json:"shortcutTarget,omitempty"`
}

// Created is the result of a create operation: the new file's ID and a
// human-viewable URL.
type Created struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type Gateway struct {
	svc *drive.Service
}

func New(svc *drive.Service) *Gateway {
	return &Gateway{svc: svc}
}

// ListFiles returns the non-trashed children of a folder, optionally
// narrowed by an extra query clause ANDed onto the parent predicate.
func (g *Gateway) ListFiles(ctx context.Context, folderID, extraQuery string) ([]FileInfo, error) {
	if strings.TrimSpace(folderID) == "" {
		return nil, &ValidationError{Reason: "folderId is required"}
	}

	query := fmt.Sprintf("'%s' in parents and trashed = false", folderID)
	if strings.TrimSpace(extraQuery) != "" {
		query += " and (" + extraQuery + ")"
	}

	files := []FileInfo{}
	call := g.svc.Files.List().
		Q(query).
		Fields(googleapi.Field("nextPageToken, files(" + fileFields + ")")).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx)
	err := gapi.Retry(ctx, func() error {
		files = files[:0]
		return call.Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				files = append(files, toFileInfo(f))
			}
			return nil
		})
	})
	if err != nil {
		return nil, gapi.WrapError("list files in "+folderID, err)
	}
	return files, nil
}

// CreateFolder creates a folder under parentID.
func (g *Gateway) CreateFolder(ctx context.Context, name, parentID string) (Created, error) {
	return g.create(ctx, &drive.File{
		Name:     name,
		MimeType: MimeFolder,
		Parents:  parents(parentID),
	})
}

// CreateDocument creates a file of the given MIME type under parentID.
func (g *Gateway) CreateDocument(ctx context.Context, name, mimeType, parentID string) (Created, error) {
	if strings.TrimSpace(mimeType) == "" {
		mimeType = MimeDocument
	}
	return g.create(ctx, &drive.File{
		Name:     name,
		MimeType: mimeType,
		Parents:  parents(parentID),
	})
}

// CreateShortcut creates a shortcut to targetID under parentID. When name
// is empty the target's current name is fetched and reused.
func (g *Gateway) CreateShortcut(ctx context.Context, targetID, parentID, name string) (Created, error) {
	if strings.TrimSpace(targetID) == "" {
		return Created{}, &ValidationError{Reason: "targetId is required"}
	}
	if name == "" {
		target, err := g.GetFile(ctx, targetID)
		if err != nil {
			return Created{}, err
		}
		name = target.Name
	}
	return g.create(ctx, &drive.File{
		Name:     name,
		MimeType: mimeShortcut,
		Parents:  parents(parentID),
		ShortcutDetails: &drive.FileShortcutDetails{
			TargetId: targetID,
		},
	})
}

// MoveFile reparents a file. Drive has no "replace parents": the old
// parent must be removed explicitly, so when prevParentID is not supplied
// the file's current parent list is fetched and its first entry used.
func (g *Gateway) MoveFile(ctx context.Context, fileID, newParentID, prevParentID string) error {
	if strings.TrimSpace(fileID) == "" {
		return &ValidationError{Reason: "fileId is required"}
	}
	if strings.TrimSpace(newParentID) == "" {
		return &ValidationError{Reason: "newParentId is required"}
	}

	if prevParentID == "" {
		info, err := g.GetFile(ctx, fileID)
		if err != nil {
			return err
		}
		if len(info.Parents) > 0 {
			prevParentID = info.Parents[0]
		}
	}

	call := g.svc.Files.Update(fileID, nil).
		AddParents(newParentID).
		SupportsAllDrives(true).
		Fields("id, parents").
		Context(ctx)
	if prevParentID != "" {
		call = call.RemoveParents(prevParentID)
	}
	err := gapi.Retry(ctx, func() error {
		_, callErr := call.Do()
		return callErr
	})
	if err != nil {
		return wrapDriveErr("move file "+fileID, fileID, err)
	}
	return nil
}

// GetFile fetches a file's metadata, including shortcut target resolution
// when the file is a shortcut.
func (g *Gateway) GetFile(ctx context.Context, fileID string) (FileInfo, error) {
	if strings.TrimSpace(fileID) == "" {
		return FileInfo{}, &ValidationError{Reason: "fileId is required"}
	}

	var file *drive.File
	err := gapi.Retry(ctx, func() error {
		var callErr error
		file, callErr = g.svc.Files.Get(fileID).
			Fields(googleapi.Field(fileFields)).
			SupportsAllDrives(true).
			Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return FileInfo{}, wrapDriveErr("get file "+fileID, fileID, err)
	}
	return toFileInfo(file), nil
}

func (g *Gateway) create(ctx context.Context, file *drive.File) (Created, error) {
	if strings.TrimSpace(file.Name) == "" {
		return Created{}, &ValidationError{Reason: "name is required"}
	}

	var created *drive.File
	err := gapi.Retry(ctx, func() error {
		var callErr error
		created, callErr = g.svc.Files.Create(file).
			Fields("id, webViewLink").
			SupportsAllDrives(true).
			Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return Created{}, gapi.WrapError("create "+file.Name, err)
	}
	return Created{ID: created.Id, URL: created.WebViewLink}, nil
}

func toFileInfo(f *drive.File) FileInfo {
	info := FileInfo{
		ID:       f.Id,
		Name:     f.Name,
		MimeType: f.MimeType,
		URL:      f.WebViewLink,
		Parents:  f.Parents,
	}
	if f.ShortcutDetails != nil {
		info.ShortcutTarget = f.ShortcutDetails.TargetId
	}
	return info
}

func parents(parentID string) []string {
	if parentID == "" {
		return nil
	}
	return []string{parentID}
}

// wrapDriveErr turns a 404 on a named file into NotFoundError; everything
// else is upstream.
func wrapDriveErr(op, fileID string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return &NotFoundError{FileID: fileID}
	}
	return gapi.WrapError(op, err)
}
