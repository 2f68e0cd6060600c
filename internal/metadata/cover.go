package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// maxCoverEdge bounds embedded cover art; most audiobook players reject or
// downscale anything larger.
const maxCoverEdge = 1400

var coverCandidates = []string{"cover", "folder", "front", "artwork"}
var coverExtensions = []string{".jpg", ".jpeg", ".png"}

// FindCover looks for a cover image beside the input files, checking common
// basenames case-insensitively. Returns "" when none exists.
func FindCover(inputDir string) string {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		ext := filepath.Ext(name)
		if !contains(coverExtensions, ext) {
			continue
		}
		if contains(coverCandidates, strings.TrimSuffix(name, ext)) {
			return filepath.Join(inputDir, entry.Name())
		}
	}
	return ""
}

// PrepareCover loads the image at srcPath, downscales it to fit within
// maxCoverEdge on both axes when necessary, and writes the result as JPEG
// under workDir. Already-small images are re-encoded rather than copied so
// the embed step always sees a predictable format.
func PrepareCover(srcPath, workDir string) (string, error) {
	img, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("open cover %s: %w", srcPath, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxCoverEdge || bounds.Dy() > maxCoverEdge {
		img = imaging.Fit(img, maxCoverEdge, maxCoverEdge, imaging.Lanczos)
	}

	destPath := filepath.Join(workDir, "cover.jpg")
	if err := imaging.Save(img, destPath, imaging.JPEGQuality(90)); err != nil {
		return "", fmt.Errorf("save cover: %w", err)
	}
	return destPath, nil
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
