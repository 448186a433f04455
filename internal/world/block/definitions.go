package block

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition - описание блока из YAML-файла
type Definition struct {
	Name     string `yaml:"name"`
	Variants int    `yaml:"variants"`
}

type definitionsFile struct {
	Blocks []Definition `yaml:"blocks"`
}

// LoadDefinitions читает описания дополнительных блоков из YAML.
//
// Формат:
//
//	blocks:
//	  - name: mymod:machine
//	    variants: 4
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file definitionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("ошибка разбора описаний блоков %s: %w", path, err)
	}

	for i, def := range file.Blocks {
		if def.Name == "" {
			return nil, fmt.Errorf("блок #%d в %s: пустое имя", i, path)
		}
	}
	return file.Blocks, nil
}
