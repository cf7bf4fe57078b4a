// Package models resolves model and metadata files inside a models directory.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// File names inside a models directory.
const (
	// Plate deployment.
	PlateLocalizer       = "localizer.onnx"
	PlateLocalizerLabels = "localizer_dm.json"
	PlateFields          = "fields.onnx"
	PlateFieldLabels     = "dm.json"
	PlateFieldTransforms = "transforms.yaml"
	PlateLayouts         = "layouts.yaml"

	// Document deployment.
	DocumentDetector = "document.onnx"
	DocumentLabels   = "document_dm.json"

	// Recognition.
	Recognizer     = "recognizer.onnx"
	RecognizerDict = "recognizer_dict.txt"
)

// Model type categories for organized directory structure.
const (
	TypePlate       = "plate"
	TypeDocument    = "document"
	TypeRecognition = "recognition"
)

// Default models directory.
const DefaultModelsDir = "models"

// Environment variable for models directory override.
const EnvModelsDir = "PLATEX_MODELS_DIR"

// findProjectRoot finds the project root by looking for go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.New("could not find project root (go.mod not found)")
}

// ModelInfo contains metadata about a model file.
type ModelInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Filename    string `json:"filename"`
	Required    bool   `json:"required"`
}

// GetModelsDir returns the models directory path from various sources
// Priority: 1. Explicit modelsDir parameter, 2. Environment variable, 3. Project root + default.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}

	if envDir := os.Getenv(EnvModelsDir); envDir != "" {
		return envDir
	}

	if projectRoot, err := findProjectRoot(); err == nil {
		return filepath.Join(projectRoot, DefaultModelsDir)
	}

	return DefaultModelsDir
}

// ResolveModelPath resolves a file name to its full path. The organized
// layout (<dir>/<type>/<file>) is preferred; the flat layout is the fallback.
func ResolveModelPath(modelsDir, modelType, filename string) string {
	baseDir := GetModelsDir(modelsDir)

	if modelType != "" {
		organized := filepath.Join(baseDir, modelType, filename)
		if _, err := os.Stat(organized); err == nil {
			return organized
		}
	}

	return filepath.Join(baseDir, filename)
}

// PlatePaths lists the files of the plate deployment.
type PlatePaths struct {
	Localizer       string
	LocalizerLabels string
	Fields          string
	FieldLabels     string
	FieldTransforms string
	Layouts         string
}

// GetPlatePaths resolves the plate deployment files.
func GetPlatePaths(modelsDir string) PlatePaths {
	return PlatePaths{
		Localizer:       ResolveModelPath(modelsDir, TypePlate, PlateLocalizer),
		LocalizerLabels: ResolveModelPath(modelsDir, TypePlate, PlateLocalizerLabels),
		Fields:          ResolveModelPath(modelsDir, TypePlate, PlateFields),
		FieldLabels:     ResolveModelPath(modelsDir, TypePlate, PlateFieldLabels),
		FieldTransforms: ResolveModelPath(modelsDir, TypePlate, PlateFieldTransforms),
		Layouts:         ResolveModelPath(modelsDir, TypePlate, PlateLayouts),
	}
}

// DocumentPaths lists the files of the document deployment.
type DocumentPaths struct {
	Detector string
	Labels   string
}

// GetDocumentPaths resolves the document deployment files.
func GetDocumentPaths(modelsDir string) DocumentPaths {
	return DocumentPaths{
		Detector: ResolveModelPath(modelsDir, TypeDocument, DocumentDetector),
		Labels:   ResolveModelPath(modelsDir, TypeDocument, DocumentLabels),
	}
}

// GetRecognizerModelPath returns the path of the CTC recognition model.
func GetRecognizerModelPath(modelsDir string) string {
	return ResolveModelPath(modelsDir, TypeRecognition, Recognizer)
}

// GetRecognizerDictPath returns the path of the recognition dictionary.
func GetRecognizerDictPath(modelsDir string) string {
	return ResolveModelPath(modelsDir, TypeRecognition, RecognizerDict)
}

// ValidateModelExists checks if a model file exists at the given path.
func ValidateModelExists(modelPath string) error {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", modelPath)
	}
	return nil
}

// ListAvailableModels describes the files a models directory may hold.
// Label maps, transforms and layouts are optional: their absence falls back
// to synthetic names and built-in defaults.
func ListAvailableModels() []ModelInfo {
	return []ModelInfo{
		{Name: "plate-localizer", Type: TypePlate, Description: "Plate region detector", Filename: PlateLocalizer, Required: true},
		{Name: "plate-localizer-labels", Type: TypePlate, Description: "Plate region class names", Filename: PlateLocalizerLabels},
		{Name: "plate-fields", Type: TypePlate, Description: "Plate character block detector", Filename: PlateFields, Required: true},
		{Name: "plate-field-labels", Type: TypePlate, Description: "Plate field class names", Filename: PlateFieldLabels},
		{Name: "plate-field-transforms", Type: TypePlate, Description: "Plate field preprocessing", Filename: PlateFieldTransforms},
		{Name: "plate-layouts", Type: TypePlate, Description: "Plate layout patterns", Filename: PlateLayouts},
		{Name: "document-detector", Type: TypeDocument, Description: "ID card field detector", Filename: DocumentDetector, Required: true},
		{Name: "document-labels", Type: TypeDocument, Description: "ID card field class names", Filename: DocumentLabels},
		{Name: "recognizer", Type: TypeRecognition, Description: "CTC text recognizer", Filename: Recognizer, Required: true},
		{Name: "recognizer-dict", Type: TypeRecognition, Description: "Recognizer character dictionary", Filename: RecognizerDict, Required: true},
	}
}

// Status reports which known files exist under modelsDir.
func Status(modelsDir string) map[string]bool {
	out := make(map[string]bool)
	for _, m := range ListAvailableModels() {
		out[m.Name] = ValidateModelExists(ResolveModelPath(modelsDir, m.Type, m.Filename)) == nil
	}
	return out
}
