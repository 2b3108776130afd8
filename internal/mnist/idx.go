// Package mnist reads the headers of MNIST IDX files, plain or gzip
// compressed, to check that an uploaded dataset is usable before training.
package mnist

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var ErrInvalidIDX = errors.New("invalid idx file")

type Kind int

const (
	Images Kind = iota
	Labels
)

func (k Kind) String() string {
	if k == Images {
		return "images"
	}
	return "labels"
}

const (
	imagesMagic = 0x00000803
	labelsMagic = 0x00000801
)

type Header struct {
	Kind  Kind
	Count int
	Rows  int
	Cols  int
}

func ReadHeader(r io.Reader) (Header, error) {
	br := bufio.NewReader(r)

	prefix, err := br.Peek(2)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrInvalidIDX, err)
	}

	var src io.Reader = br
	if prefix[0] == 0x1f && prefix[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return Header{}, fmt.Errorf("%w: bad gzip stream: %w", ErrInvalidIDX, err)
		}
		defer gz.Close()
		src = gz
	}

	var magic uint32
	if err := binary.Read(src, binary.BigEndian, &magic); err != nil {
		return Header{}, fmt.Errorf("%w: reading magic: %w", ErrInvalidIDX, err)
	}

	switch magic {
	case imagesMagic:
		var dims [3]uint32
		if err := binary.Read(src, binary.BigEndian, &dims); err != nil {
			return Header{}, fmt.Errorf("%w: reading image dims: %w", ErrInvalidIDX, err)
		}
		return Header{Kind: Images, Count: int(dims[0]), Rows: int(dims[1]), Cols: int(dims[2])}, nil
	case labelsMagic:
		var count uint32
		if err := binary.Read(src, binary.BigEndian, &count); err != nil {
			return Header{}, fmt.Errorf("%w: reading label count: %w", ErrInvalidIDX, err)
		}
		return Header{Kind: Labels, Count: int(count)}, nil
	default:
		return Header{}, fmt.Errorf("%w: unexpected magic number 0x%08x", ErrInvalidIDX, magic)
	}
}

func ReadHeaderFile(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("error opening %s: %w", path, err)
	}
	defer f.Close()

	header, err := ReadHeader(f)
	if err != nil {
		return Header{}, fmt.Errorf("%s: %w", path, err)
	}
	return header, nil
}

// Names torchvision expects under MNIST/raw.
const (
	RawTrainImages = "train-images-idx3-ubyte"
	RawTrainLabels = "train-labels-idx1-ubyte"
	RawTestImages  = "t10k-images-idx3-ubyte"
	RawTestLabels  = "t10k-labels-idx1-ubyte"
)

// Dataset holds the paths of the four MNIST files.
type Dataset struct {
	TrainImages string
	TrainLabels string
	TestImages  string
	TestLabels  string
}

// RawDataset returns the dataset laid out under dir with the raw names.
func RawDataset(dir string) Dataset {
	return Dataset{
		TrainImages: filepath.Join(dir, RawTrainImages),
		TrainLabels: filepath.Join(dir, RawTrainLabels),
		TestImages:  filepath.Join(dir, RawTestImages),
		TestLabels:  filepath.Join(dir, RawTestLabels),
	}
}

type Summary struct {
	TrainSamples int
	TestSamples  int
	Rows         int
	Cols         int
}

func readExpected(path string, kind Kind) (Header, error) {
	header, err := ReadHeaderFile(path)
	if err != nil {
		return Header{}, err
	}
	if header.Kind != kind {
		return Header{}, fmt.Errorf("%w: %s contains %s, expected %s", ErrInvalidIDX, path, header.Kind, kind)
	}
	return header, nil
}

// ValidateDataset checks the kind of each file and that every image set has
// as many labels as images.
func ValidateDataset(d Dataset) (Summary, error) {
	trainImages, err := readExpected(d.TrainImages, Images)
	if err != nil {
		return Summary{}, err
	}
	trainLabels, err := readExpected(d.TrainLabels, Labels)
	if err != nil {
		return Summary{}, err
	}
	testImages, err := readExpected(d.TestImages, Images)
	if err != nil {
		return Summary{}, err
	}
	testLabels, err := readExpected(d.TestLabels, Labels)
	if err != nil {
		return Summary{}, err
	}

	if trainImages.Count != trainLabels.Count {
		return Summary{}, fmt.Errorf("%w: %d train images but %d train labels", ErrInvalidIDX, trainImages.Count, trainLabels.Count)
	}
	if testImages.Count != testLabels.Count {
		return Summary{}, fmt.Errorf("%w: %d test images but %d test labels", ErrInvalidIDX, testImages.Count, testLabels.Count)
	}
	if trainImages.Rows != testImages.Rows || trainImages.Cols != testImages.Cols {
		return Summary{}, fmt.Errorf("%w: train images are %dx%d but test images are %dx%d", ErrInvalidIDX,
			trainImages.Rows, trainImages.Cols, testImages.Rows, testImages.Cols)
	}

	return Summary{
		TrainSamples: trainImages.Count,
		TestSamples:  testImages.Count,
		Rows:         trainImages.Rows,
		Cols:         trainImages.Cols,
	}, nil
}
