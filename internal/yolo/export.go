package yolo

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/BuckanovNikita/cveta2/pkg/types"
)

// LinkMode selects how exported images are placed in the output tree.
type LinkMode string

const (
	LinkCopy     LinkMode = "copy"
	LinkHardlink LinkMode = "hardlink"
	LinkSymlink  LinkMode = "symlink"
)

// ParseLinkMode validates a link mode flag value.
func ParseLinkMode(s string) (LinkMode, error) {
	switch LinkMode(s) {
	case LinkCopy, LinkHardlink, LinkSymlink:
		return LinkMode(s), nil
	case "":
		return LinkCopy, nil
	}
	return "", errors.Errorf("unknown link mode %q (want copy, hardlink or symlink)", s)
}

// ExportOptions configures a CSV-to-YOLO conversion.
type ExportOptions struct {
	OutputDir string
	// SearchDirs are scanned for the image files named in the table.
	SearchDirs []string
	LinkMode   LinkMode
}

// ExportStats summarizes one export run.
type ExportStats struct {
	Images        int
	Classes       int
	MissingImages []string
}

// Export writes the box and none rows of a dataset as a YOLO directory
// tree. Every row must carry a split; deleted-marker rows never reach
// this point and any other shapes are ignored.
func Export(records []types.Record, opts ExportOptions, log *logrus.Entry) (ExportStats, error) {
	var stats ExportStats

	var rows []types.Record
	for _, r := range records {
		if r.Shape == types.ShapeBox || r.Shape == types.ShapeNone {
			rows = append(rows, r)
		}
	}
	if err := validateSplits(rows); err != nil {
		return stats, err
	}

	labelMap := buildLabelMap(rows)
	stats.Classes = len(labelMap)
	log.WithField("classes", len(labelMap)).Info("label map built")

	splits := splitSet(rows)
	for split := range splits {
		for _, sub := range []string{"images", "labels"} {
			if err := os.MkdirAll(filepath.Join(opts.OutputDir, sub, split), 0o755); err != nil {
				return stats, err
			}
		}
	}

	placed := make(map[string]struct{})
	missing := make(map[string]struct{})

	placeImage := func(r types.Record) error {
		if _, done := placed[r.ImageName]; done {
			return nil
		}
		src := findImage(r.ImageName, opts.SearchDirs)
		if src == "" {
			missing[r.ImageName] = struct{}{}
			return nil
		}
		dst := filepath.Join(opts.OutputDir, "images", r.Split, r.ImageName)
		if err := placeFile(src, dst, opts.LinkMode); err != nil {
			return err
		}
		placed[r.ImageName] = struct{}{}
		return nil
	}

	// Group box rows per image so each label file is written once.
	boxesByImage := make(map[string][]types.Record)
	var imageOrder []string
	for _, r := range rows {
		if r.Shape != types.ShapeBox {
			continue
		}
		if _, seen := boxesByImage[r.ImageName]; !seen {
			imageOrder = append(imageOrder, r.ImageName)
		}
		boxesByImage[r.ImageName] = append(boxesByImage[r.ImageName], r)
	}

	for _, name := range imageOrder {
		group := boxesByImage[name]
		first := group[0]
		if err := placeImage(first); err != nil {
			return stats, err
		}
		var lines []string
		for _, r := range group {
			box := PixelToYolo(PixelBox{XTL: r.XTL, YTL: r.YTL, XBR: r.XBR, YBR: r.YBR},
				r.ImageWidth, r.ImageHeight)
			lines = append(lines, formatLabelLine(labelMap[r.Label], box))
		}
		labelPath := filepath.Join(opts.OutputDir, "labels", first.Split, stem(name)+".txt")
		if err := os.WriteFile(labelPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
			return stats, err
		}
	}

	// None rows get an empty label file unless the image already has one.
	for _, r := range rows {
		if r.Shape != types.ShapeNone {
			continue
		}
		if err := placeImage(r); err != nil {
			return stats, err
		}
		labelPath := filepath.Join(opts.OutputDir, "labels", r.Split, stem(r.ImageName)+".txt")
		if _, err := os.Stat(labelPath); err == nil {
			continue
		}
		if err := os.WriteFile(labelPath, nil, 0o644); err != nil {
			return stats, err
		}
	}

	if err := writeDatasetYAML(opts.OutputDir, splits, labelMap); err != nil {
		return stats, err
	}

	stats.Images = len(placed)
	for name := range missing {
		stats.MissingImages = append(stats.MissingImages, name)
	}
	sort.Strings(stats.MissingImages)
	if len(stats.MissingImages) > 0 {
		log.WithField("count", len(stats.MissingImages)).Warn("images not found in any search dir")
	}
	return stats, nil
}

// validateSplits rejects a dataset where any exported image has no
// split assignment.
func validateSplits(rows []types.Record) error {
	bad := make(map[string]struct{})
	for _, r := range rows {
		if r.Split == "" {
			bad[r.ImageName] = struct{}{}
		}
	}
	if len(bad) == 0 {
		return nil
	}
	names := make([]string, 0, len(bad))
	for name := range bad {
		names = append(names, name)
	}
	sort.Strings(names)
	sample := names
	if len(sample) > 10 {
		sample = sample[:10]
	}
	return errors.Errorf("%d image(s) have no split assigned, e.g. %s",
		len(names), strings.Join(sample, ", "))
}

// buildLabelMap assigns class ids to the sorted unique box labels.
func buildLabelMap(rows []types.Record) map[string]int {
	seen := make(map[string]struct{})
	for _, r := range rows {
		if r.Shape == types.ShapeBox && r.Label != "" {
			seen[r.Label] = struct{}{}
		}
	}
	labels := make([]string, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	labelMap := make(map[string]int, len(labels))
	for i, l := range labels {
		labelMap[l] = i
	}
	return labelMap
}

func splitSet(rows []types.Record) map[string]struct{} {
	splits := make(map[string]struct{})
	for _, r := range rows {
		if r.Split != "" {
			splits[r.Split] = struct{}{}
		}
	}
	return splits
}

// placeFile puts src at dst by the chosen mode. An existing dst is left
// alone.
func placeFile(src, dst string, mode LinkMode) error {
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	switch mode {
	case LinkSymlink:
		abs, err := filepath.Abs(src)
		if err != nil {
			return err
		}
		return os.Symlink(abs, dst)
	case LinkHardlink:
		return os.Link(src, dst)
	default:
		return copyFile(src, dst)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// writeDatasetYAML emits the ultralytics dataset.yaml describing the
// exported tree.
func writeDatasetYAML(outputDir string, splits map[string]struct{}, labelMap map[string]int) error {
	abs, err := filepath.Abs(outputDir)
	if err != nil {
		return err
	}
	root := yaml.Node{Kind: yaml.MappingNode}
	addKV := func(key, value string) {
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: value})
	}
	addKV("path", abs)
	for _, split := range []string{"train", "val", "test"} {
		if _, ok := splits[split]; ok {
			addKV(split, "images/"+split)
		}
	}

	names := yaml.Node{Kind: yaml.MappingNode}
	ordered := make([]string, len(labelMap))
	for label, id := range labelMap {
		ordered[id] = label
	}
	for id, label := range ordered {
		names.Content = append(names.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: fmt.Sprintf("%d", id)},
			&yaml.Node{Kind: yaml.ScalarNode, Value: label})
	}
	root.Content = append(root.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: "names"}, &names)

	data, err := yaml.Marshal(&root)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, "dataset.yaml"), data, 0o644)
}
