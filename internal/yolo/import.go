package yolo

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/BuckanovNikita/cveta2/internal/images"
	"github.com/BuckanovNikita/cveta2/pkg/types"
)

// ImportOptions configures a YOLO-to-CSV conversion.
type ImportOptions struct {
	// NamesFile maps class ids to label names in prediction mode. Without
	// it classes import as "class_<id>".
	NamesFile string
	// SearchDirs are scanned for images matching prediction label files.
	SearchDirs []string
	// ReadAllSizes probes every image for its dimensions instead of
	// assuming the first image's size for the whole set.
	ReadAllSizes bool
}

// Import reads a YOLO directory back into annotation records. A
// directory with a dataset.yaml imports as a dataset with split
// assignments; bare label files import as predictions, resolving images
// by stem across the search dirs.
func Import(inputDir string, opts ImportOptions, log *logrus.Entry) ([]types.Record, error) {
	yamlPath := filepath.Join(inputDir, "dataset.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		log.WithField("config", yamlPath).Info("importing as dataset")
		return importDataset(inputDir, yamlPath, opts, log)
	}
	log.Info("no dataset.yaml found, importing as predictions")
	return importPredictions(inputDir, opts, log)
}

// sharedSizeCache probes the first image and reuses its dimensions,
// unless readAll forces a probe per image.
type sharedSizeCache struct {
	readAll bool
	cached  bool
	w, h    int
}

func (c *sharedSizeCache) size(path string) (int, int, error) {
	if c.readAll {
		return images.Size(path)
	}
	if !c.cached {
		w, h, err := images.Size(path)
		if err != nil {
			return 0, 0, err
		}
		c.w, c.h, c.cached = w, h, true
	}
	return c.w, c.h, nil
}

func importDataset(inputDir, yamlPath string, opts ImportOptions, log *logrus.Entry) ([]types.Record, error) {
	data, err := os.ReadFile(yamlPath)
	if err != nil {
		return nil, err
	}
	var cfg struct {
		Train string         `yaml:"train"`
		Val   string         `yaml:"val"`
		Test  string         `yaml:"test"`
		Names map[int]string `yaml:"names"`
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parsing dataset.yaml")
	}
	if len(cfg.Names) == 0 {
		return nil, errors.Errorf("no class names in %s", yamlPath)
	}

	sizes := &sharedSizeCache{readAll: opts.ReadAllSizes}
	var records []types.Record
	frameID := 0
	annotationID := 1

	for _, sp := range []struct{ name, dir string }{
		{"train", cfg.Train}, {"val", cfg.Val}, {"test", cfg.Test},
	} {
		if sp.dir == "" {
			continue
		}
		imagesDir := filepath.Join(inputDir, filepath.FromSlash(sp.dir))
		labelsDir := filepath.Join(inputDir,
			filepath.FromSlash(strings.Replace(sp.dir, "images", "labels", 1)))

		entries, err := os.ReadDir(imagesDir)
		if err != nil {
			log.WithError(err).WithField("dir", imagesDir).Warn("images directory not readable")
			continue
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() && isImageFile(e.Name()) {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			imgPath := filepath.Join(imagesDir, name)
			w, h, err := sizes.size(imgPath)
			if err != nil {
				return nil, err
			}
			lines, err := parseLabelFile(filepath.Join(labelsDir, stem(name)+".txt"))
			if err != nil {
				return nil, err
			}
			if len(lines) == 0 {
				records = append(records, importedNoneRecord(name, w, h, sp.name, frameID))
			} else {
				for _, line := range lines {
					records = append(records,
						importedBoxRecord(line, cfg.Names, name, w, h, sp.name, frameID, annotationID))
					annotationID++
				}
			}
			frameID++
		}
	}
	return records, nil
}

func importPredictions(inputDir string, opts ImportOptions, log *logrus.Entry) ([]types.Record, error) {
	classNames := map[int]string{}
	if opts.NamesFile != "" {
		var err error
		classNames, err = loadClassNames(opts.NamesFile)
		if err != nil {
			return nil, err
		}
	}

	var labelFiles []string
	err := filepath.WalkDir(inputDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".txt") {
			labelFiles = append(labelFiles, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(labelFiles) == 0 {
		return nil, errors.Errorf("no label files found in %s", inputDir)
	}
	sort.Strings(labelFiles)

	sizes := &sharedSizeCache{readAll: opts.ReadAllSizes}
	searchDirs := append([]string{inputDir}, opts.SearchDirs...)

	var records []types.Record
	var missing []string
	frameID := 0
	annotationID := 1

	for _, labelPath := range labelFiles {
		lines, err := parseLabelFile(labelPath)
		if err != nil {
			return nil, err
		}
		if len(lines) == 0 {
			continue
		}
		imgPath := findImageByStem(stem(filepath.Base(labelPath)), searchDirs)
		if imgPath == "" {
			missing = append(missing, stem(filepath.Base(labelPath)))
			continue
		}
		w, h, err := sizes.size(imgPath)
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			records = append(records, importedBoxRecord(
				line, classNames, filepath.Base(imgPath), w, h, "", frameID, annotationID))
			annotationID++
		}
		frameID++
	}
	if len(missing) > 0 {
		log.WithFields(logrus.Fields{
			"count": len(missing), "sample": sample(missing, 10),
		}).Warn("no image found for some label files")
	}
	return records, nil
}

func sample(names []string, n int) []string {
	if len(names) > n {
		return names[:n]
	}
	return names
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func importedBoxRecord(line labelLine, classNames map[int]string, imageName string, imgW, imgH int, split string, frameID, annotationID int) types.Record {
	label, ok := classNames[line.Class]
	if !ok {
		label = fmt.Sprintf("class_%d", line.Class)
	}
	pixel := YoloToPixel(line.Box, imgW, imgH)
	id := annotationID
	return types.Record{
		ImageName:    imageName,
		ImageWidth:   imgW,
		ImageHeight:  imgH,
		Shape:        types.ShapeBox,
		Label:        label,
		XTL:          round2(pixel.XTL),
		YTL:          round2(pixel.YTL),
		XBR:          round2(pixel.XBR),
		YBR:          round2(pixel.YBR),
		TaskName:     "yolo",
		FrameID:      frameID,
		Source:       "yolo",
		AnnotationID: &id,
		Attributes:   map[string]string{},
		Split:        split,
		Confidence:   line.Confidence,
	}
}

func importedNoneRecord(imageName string, imgW, imgH int, split string, frameID int) types.Record {
	return types.Record{
		ImageName:   imageName,
		ImageWidth:  imgW,
		ImageHeight: imgH,
		Shape:       types.ShapeNone,
		TaskName:    "yolo",
		FrameID:     frameID,
		Source:      "yolo",
		Attributes:  map[string]string{},
		Split:       split,
	}
}
