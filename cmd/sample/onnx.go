//go:build ort

package main

import (
	"github.com/LiorZ/BoltzDesign1/nn"
	"github.com/LiorZ/BoltzDesign1/onnxscore"
	"github.com/LiorZ/BoltzDesign1/utils"
)

func init() {
	openONNX = func(cfg utils.ModelConfig) (nn.ScoreModel, func(), error) {
		m, err := onnxscore.Open(cfg.Path, cfg.SharedLibrary)
		if err != nil {
			return nil, nil, err
		}
		return m, m.Destroy, nil
	}
}
