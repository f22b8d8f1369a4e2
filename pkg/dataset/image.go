/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

// imageExtensions are the file types accepted inside an image dataset.
var imageExtensions = map[string]bool{
	".jpg": true,
	".png": true,
}

// ImageData describes an extracted image dataset laid out as one
// directory per class.
type ImageData struct {
	Root       string
	ClassNames []string
	Counts     map[string]int
	ImageSize  []int
}

// NumSamples returns the total image count across classes.
func (d *ImageData) NumSamples() int {
	total := 0
	for _, n := range d.Counts {
		total += n
	}
	return total
}

// NumClasses returns the number of class directories.
func (d *ImageData) NumClasses() int {
	return len(d.ClassNames)
}

// LoadImageDirectory validates an extracted image dataset rooted at root.
// Each immediate subdirectory is a class and must contain at least one
// image file. Files directly under root are rejected.
func LoadImageDirectory(root string, def *Definition) (*ImageData, error) {
	if def.Type != KindImage {
		return nil, commonerrors.NewBadRequest(
			fmt.Sprintf("dataset definition type is %s, expected %s", def.Type, KindImage))
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, commonerrors.NewInputMissing(
			fmt.Sprintf("failed to read dataset directory %s", root)).WithError(err)
	}

	data := &ImageData{
		Root:      root,
		Counts:    map[string]int{},
		ImageSize: def.ImageSize,
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
				return nil, commonerrors.NewSchemaMismatch(
					fmt.Sprintf("image %s is not inside a class directory", entry.Name()))
			}
			continue
		}
		count, err := countImages(filepath.Join(root, entry.Name()))
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, commonerrors.NewSchemaMismatch(
				fmt.Sprintf("class directory %q contains no images", entry.Name()))
		}
		data.ClassNames = append(data.ClassNames, entry.Name())
		data.Counts[entry.Name()] = count
	}
	if len(data.ClassNames) == 0 {
		return nil, commonerrors.NewSchemaMismatch("image dataset contains no class directories")
	}
	sort.Strings(data.ClassNames)
	return data, nil
}

func countImages(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && imageExtensions[strings.ToLower(filepath.Ext(path))] {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, commonerrors.NewInternalError("failed to walk dataset directory").WithError(err)
	}
	return count, nil
}
