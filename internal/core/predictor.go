package core

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/nfnt/resize"
)

// ImageSize is the side of the square grayscale input the digit model takes.
const ImageSize = 28

var ErrInvalidImage = errors.New("invalid image")

type Predictor interface {
	// Predict returns the class scores for one normalized ImageSize x ImageSize
	// grayscale image.
	Predict(input []float32) ([]float32, error)

	Release()
}

func DecodeImage(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	return img, nil
}

// PreprocessImage converts img to grayscale, scales it to ImageSize x ImageSize
// and maps pixel values into [-1, 1].
func PreprocessImage(img image.Image) []float32 {
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(gray, gray.Bounds(), img, bounds.Min, draw.Src)

	resized := resize.Resize(ImageSize, ImageSize, gray, resize.Bilinear)

	input := make([]float32, ImageSize*ImageSize)
	for y := 0; y < ImageSize; y++ {
		for x := 0; x < ImageSize; x++ {
			r, _, _, _ := resized.At(resized.Bounds().Min.X+x, resized.Bounds().Min.Y+y).RGBA()
			v := float32(r) / 65535.0
			input[y*ImageSize+x] = (v - 0.5) / 0.5
		}
	}
	return input
}

func Argmax(scores []float32) int {
	best := -1
	for i, s := range scores {
		if best < 0 || s > scores[best] {
			best = i
		}
	}
	return best
}

// PredictDigit decodes an uploaded image and returns the most likely class.
func PredictDigit(p Predictor, r io.Reader) (int, error) {
	img, err := DecodeImage(r)
	if err != nil {
		return 0, err
	}

	scores, err := p.Predict(PreprocessImage(img))
	if err != nil {
		return 0, fmt.Errorf("error running model: %w", err)
	}

	class := Argmax(scores)
	if class < 0 {
		return 0, fmt.Errorf("model returned no scores")
	}
	return class, nil
}
