// Package yolo converts between the flat annotation table and the YOLO
// detection format (ultralytics directory layout: images/<split>,
// labels/<split>, dataset.yaml).
package yolo

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// imageExtensions are the file extensions recognized when pairing label
// files with images.
var imageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".webp"}

// PixelBox is a bounding box in pixel coordinates, top-left and
// bottom-right corners.
type PixelBox struct {
	XTL, YTL, XBR, YBR float64
}

// YoloBox is a normalized bounding box: center point plus width and
// height, each in [0, 1].
type YoloBox struct {
	XC, YC, W, H float64
}

// PixelToYolo normalizes a pixel box against the image dimensions.
func PixelToYolo(box PixelBox, imgW, imgH int) YoloBox {
	w := float64(imgW)
	h := float64(imgH)
	return YoloBox{
		XC: (box.XTL + box.XBR) / 2 / w,
		YC: (box.YTL + box.YBR) / 2 / h,
		W:  (box.XBR - box.XTL) / w,
		H:  (box.YBR - box.YTL) / h,
	}
}

// YoloToPixel converts a normalized box back to pixel coordinates.
func YoloToPixel(box YoloBox, imgW, imgH int) PixelBox {
	w := float64(imgW)
	h := float64(imgH)
	return PixelBox{
		XTL: (box.XC - box.W/2) * w,
		YTL: (box.YC - box.H/2) * h,
		XBR: (box.XC + box.W/2) * w,
		YBR: (box.YC + box.H/2) * h,
	}
}

// labelLine is one parsed line of a YOLO label file: class id, box, and
// an optional trailing confidence.
type labelLine struct {
	Class      int
	Box        YoloBox
	Confidence *float64
}

// parseLabelFile reads a YOLO label .txt file. A missing file yields no
// lines; malformed lines with fewer than five fields are skipped.
func parseLabelFile(path string) ([]labelLine, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []labelLine
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 {
			continue
		}
		vals := make([]float64, len(fields))
		bad := false
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				bad = true
				break
			}
			vals[i] = v
		}
		if bad {
			continue
		}
		line := labelLine{
			Class: int(vals[0]),
			Box:   YoloBox{XC: vals[1], YC: vals[2], W: vals[3], H: vals[4]},
		}
		if len(vals) >= 6 {
			conf := vals[5]
			line.Confidence = &conf
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", filepath.Base(path))
	}
	return lines, nil
}

func formatLabelLine(classID int, box YoloBox) string {
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f", classID, box.XC, box.YC, box.W, box.H)
}

// loadClassNames reads class names from a YAML file, accepting either a
// full dataset.yaml with a names mapping or a bare id-to-name mapping.
func loadClassNames(path string) (map[int]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading class names")
	}
	var full struct {
		Names map[int]string `yaml:"names"`
	}
	if err := yaml.Unmarshal(data, &full); err == nil && len(full.Names) > 0 {
		return full.Names, nil
	}
	var flat map[int]string
	if err := yaml.Unmarshal(data, &flat); err != nil {
		return nil, errors.Wrapf(err, "parsing class names from %s", filepath.Base(path))
	}
	return flat, nil
}

// findImageByStem looks for an image named stem plus any known
// extension across the search dirs, checking an images/ subdir of each
// as well.
func findImageByStem(stem string, searchDirs []string) string {
	for _, dir := range searchDirs {
		for _, candidate := range []string{dir, filepath.Join(dir, "images")} {
			for _, ext := range imageExtensions {
				path := filepath.Join(candidate, stem+ext)
				if info, err := os.Stat(path); err == nil && !info.IsDir() {
					return path
				}
			}
		}
	}
	return ""
}

// findImage looks for an exactly named image file across the search
// dirs.
func findImage(name string, searchDirs []string) string {
	for _, dir := range searchDirs {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

func isImageFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, known := range imageExtensions {
		if ext == known {
			return true
		}
	}
	return false
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
