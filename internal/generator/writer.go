package generator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DatasetFile is the file name WriteDataset produces under its output directory.
const DatasetFile = "transactions.json"

// WriteDataset serializes the dataset into transactions.json under the provided directory.
func WriteDataset(dataset Dataset, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(dir, DatasetFile)
	if err := writeJSON(path, dataset); err != nil {
		return "", err
	}
	return path, nil
}

// ReadDataset loads a dataset previously written by WriteDataset.
func ReadDataset(path string) (Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	var dataset Dataset
	if err := json.NewDecoder(file).Decode(&dataset); err != nil {
		return Dataset{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return dataset, nil
}

func writeJSON(path string, data any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode json for %s: %w", path, err)
	}
	return nil
}
