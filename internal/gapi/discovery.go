package gapi

import (
	"context"
	"fmt"
	"log"

	"google.golang.org/api/drive/v3"
)

const (
	mimeSpreadsheet = "application/vnd.google-apps.spreadsheet"
	mimeFolder      = "application/vnd.google-apps.folder"

	grantsFolderName = "Grants"
)

// Discover locates the deployment's spreadsheet and Grants subfolder under
// the configured root folder, creating the Grants folder when absent.
// Explicit config overrides win. Failure leaves the IDs unresolved;
// dependent operations then fail individually at call time.
func (p *Provider) Discover(ctx context.Context) error {
	if p.cfg.RootFolderID == "" {
		return nil
	}
	svc, err := p.Drive(ctx)
	if err != nil {
		return err
	}

	spreadsheetID := p.SpreadsheetID()
	if spreadsheetID == "" {
		spreadsheetID, err = p.findSpreadsheet(ctx, svc)
		if err != nil {
			return err
		}
	}

	grantsFolderID := p.GrantsFolderID()
	if grantsFolderID == "" {
		grantsFolderID, err = p.findOrCreateGrantsFolder(ctx, svc)
		if err != nil {
			return err
		}
	}

	p.setDiscovered(spreadsheetID, grantsFolderID)
	return nil
}

func (p *Provider) findSpreadsheet(ctx context.Context, svc *drive.Service) (string, error) {
	query := fmt.Sprintf("'%s' in parents and mimeType = '%s' and trashed = false", p.cfg.RootFolderID, mimeSpreadsheet)
	var list *drive.FileList
	err := Retry(ctx, func() error {
		var callErr error
		list, callErr = svc.Files.List().
			Q(query).
			Fields("files(id, name)").
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return "", WrapError("discover spreadsheet", err)
	}
	if len(list.Files) == 0 {
		return "", &ConfigurationError{Reason: "no spreadsheet found under root folder " + p.cfg.RootFolderID}
	}
	if len(list.Files) > 1 {
		log.Printf("gapi: %d spreadsheets under root folder, using %q", len(list.Files), list.Files[0].Name)
	}
	return list.Files[0].Id, nil
}

func (p *Provider) findOrCreateGrantsFolder(ctx context.Context, svc *drive.Service) (string, error) {
	query := fmt.Sprintf("'%s' in parents and mimeType = '%s' and name = '%s' and trashed = false",
		p.cfg.RootFolderID, mimeFolder, grantsFolderName)
	var list *drive.FileList
	err := Retry(ctx, func() error {
		var callErr error
		list, callErr = svc.Files.List().
			Q(query).
			Fields("files(id)").
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return "", WrapError("discover grants folder", err)
	}
	if len(list.Files) > 0 {
		return list.Files[0].Id, nil
	}

	created, err := svc.Files.Create(&drive.File{
		Name:     grantsFolderName,
		MimeType: mimeFolder,
		Parents:  []string{p.cfg.RootFolderID},
	}).Fields("id").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", WrapError("create grants folder", err)
	}
	log.Printf("gapi: created Grants folder %s under root %s", created.Id, p.cfg.RootFolderID)
	return created.Id, nil
}
