package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/idcard-api/internal/models"
	"github.com/noah-isme/idcard-api/internal/service"
	"github.com/noah-isme/idcard-api/pkg/csvimport"
	"github.com/noah-isme/idcard-api/pkg/export"
	"github.com/noah-isme/idcard-api/pkg/imaging"
)

var photoExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

type staffCardsOptions struct {
	input        string
	photos       string
	out          string
	layout       string
	allowMissing bool
}

var staffCardOpts staffCardsOptions

var staffCardsCmd = &cobra.Command{
	Use:   "staff-cards",
	Short: "Render staff ID cards from a staff list and a photo directory",
	Long: `Reads a CSV or XLSX staff list (name and id columns) and matches each
member to <photos>/<staffId>.{jpg,jpeg,png,webp}.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStaffCards(cmd, staffCardOpts)
	},
}

func init() {
	f := staffCardsCmd.Flags()
	f.StringVar(&staffCardOpts.input, "input", "", "staff list (.csv or .xlsx)")
	f.StringVar(&staffCardOpts.photos, "photos", "", "directory of photos named by staff id")
	f.StringVar(&staffCardOpts.out, "out", "staff_cards.pdf", "output PDF path")
	f.StringVar(&staffCardOpts.layout, "layout", "", "card layout YAML")
	f.BoolVar(&staffCardOpts.allowMissing, "allow-missing-photos", false, "print members without a photo using a placeholder")
	_ = staffCardsCmd.MarkFlagRequired("input")
}

func runStaffCards(cmd *cobra.Command, opts staffCardsOptions) error {
	staff, err := loadStaff(opts.input)
	if err != nil {
		return err
	}

	printable := make([]models.Staff, 0, len(staff))
	for _, member := range staff {
		if opts.photos != "" {
			dataURL, err := findPhoto(opts.photos, member.StaffID)
			if err != nil {
				return err
			}
			member.PhotoDataURL = dataURL
		}
		if !member.HasPhoto() && !opts.allowMissing {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s (%s): no photo\n", member.Name, member.StaffID)
			continue
		}
		printable = append(printable, member)
	}

	layout, err := export.LoadLayout(opts.layout)
	if err != nil {
		return err
	}
	cards := service.NewCardService(nil, nil, nil, export.NewCardRenderer(layout), nil, nil, nil, service.CardServiceConfig{})
	file, err := cards.RenderStaff(context.Background(), printable)
	if err != nil {
		return err
	}
	if err := os.WriteFile(opts.out, file.Body, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d cards to %s\n", file.CardCount, opts.out)
	return nil
}

func loadStaff(path string) ([]models.Staff, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csvimport.ReadRows(filepath.Base(path), f)
	if err != nil {
		return nil, err
	}
	records, err := csvimport.ParseStaffRows(rows, time.Now())
	if err != nil {
		return nil, err
	}
	staff := make([]models.Staff, 0, len(records))
	for _, r := range records {
		staff = append(staff, models.Staff{ID: r.ID, Name: r.Name, StaffID: r.StaffID, IssueDate: r.IssueDate})
	}
	return staff, nil
}

// findPhoto returns "" when no file matches.
func findPhoto(dir, staffID string) (string, error) {
	base := strings.TrimSpace(staffID)
	if base == "" || strings.ContainsAny(base, `/\`) {
		return "", nil
	}
	for _, ext := range photoExtensions {
		raw, err := os.ReadFile(filepath.Join(dir, base+ext))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return "", err
		}
		contentType := mime.TypeByExtension(ext)
		if contentType == "" {
			contentType = "image/" + strings.TrimPrefix(ext, ".")
		}
		return imaging.EncodeDataURL(contentType, raw), nil
	}
	return "", nil
}
