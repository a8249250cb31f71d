// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package cifar downloads and parses the CIFAR-10 and CIFAR-100 datasets into
// tensors, and wraps them as in-memory datasets for training and evaluation.
// Information about the datasets in https://www.cs.toronto.edu/~kriz/cifar.html
package cifar

import (
	"fmt"
	"image"
	"io"
	"os"
	"path"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ml/data"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

const (
	C10Url     = "https://www.cs.toronto.edu/~kriz/cifar-10-binary.tar.gz"
	C10TarName = "cifar-10-binary.tar.gz"
	C10SubDir  = "cifar-10-batches-bin"

	C100Url     = "https://www.cs.toronto.edu/~kriz/cifar-100-binary.tar.gz"
	C100TarName = "cifar-100-binary.tar.gz"
	C100SubDir  = "cifar-100-binary"

	// NumTrainExamples is the number of examples reserved for training.
	// The value is the same for both, Cifar-10 and Cifar-100.
	NumTrainExamples = 50000

	// NumTestExamples is the number of examples reserved for testing.
	// The value is the same for both, Cifar-10 and Cifar-100.
	NumTestExamples = 10000
)

// Width, Height and Depth are the dimensions of the images, the same
// for Cifar-10 and Cifar-100.
const (
	Width  int = 32
	Height int = 32
	Depth  int = 3
)

// DownloadCifar10 downloads (if not yet downloaded) the CIFAR-10 binary
// distribution under baseDir and untars it.
func DownloadCifar10(baseDir string) error {
	return data.DownloadAndUntarIfMissing(C10Url, baseDir, C10TarName, C10SubDir,
		"c4a38c50a1bc5f3a1c5537f2155ab9d68f9f25eb1ed8d9ddda3db29a59bca1dd")
}

// DownloadCifar100 downloads (if not yet downloaded) the CIFAR-100 binary
// distribution under baseDir and untars it.
func DownloadCifar100(baseDir string) error {
	return data.DownloadAndUntarIfMissing(C100Url, baseDir, C100TarName, C100SubDir,
		"58a81ae192c23a4be8b1804d68e518ed807d710a4eb253b1f2a199162a40d8ec")
}

var (
	C10Labels = []string{"airplane", "automobile", "bird", "cat", "deer", "dog", "frog", "horse", "ship", "truck"}

	C100CoarseLabels = []string{"aquatic_mammals", "fish", "flowers", "food_containers", "fruit_and_vegetables",
		"household_electrical_devices", "household_furniture", "insects", "large_carnivores",
		"large_man-made_outdoor_things", "large_natural_outdoor_scenes", "large_omnivores_and_herbivores",
		"medium_mammals", "non-insect_invertebrates", "people", "reptiles", "small_mammals", "trees", "vehicles_1",
		"vehicles_2"}
	C100FineLabels = []string{"apple", "aquarium_fish", "baby", "bear", "beaver", "bed", "bee", "beetle", "bicycle",
		"bottle", "bowl", "boy", "bridge", "bus", "butterfly", "camel", "can", "castle", "caterpillar", "cattle",
		"chair", "chimpanzee", "clock", "cloud", "cockroach", "couch", "crab", "crocodile", "cup", "dinosaur",
		"dolphin", "elephant", "flatfish", "forest", "fox", "girl", "hamster", "house", "kangaroo", "keyboard", "lamp",
		"lawn_mower", "leopard", "lion", "lizard", "lobster", "man", "maple_tree", "motorcycle", "mountain", "mouse",
		"mushroom", "oak_tree", "orange", "orchid", "otter", "palm_tree", "pear", "pickup_truck", "pine_tree", "plain",
		"plate", "poppy", "porcupine", "possum", "rabbit", "raccoon", "ray", "road", "rocket", "rose", "sea", "seal",
		"shark", "shrew", "skunk", "skyscraper", "snail", "snake", "spider", "squirrel", "streetcar", "sunflower",
		"sweet_pepper", "table", "tank", "telephone", "television", "tiger", "tractor", "train", "trout", "tulip",
		"turtle", "wardrobe", "whale", "willow_tree", "wolf", "woman", "worm"}
)

const c10ExamplesPerFile = 10000
const imageSizeBytes = Height * Width * Depth

// DataSource refers to Cifar-10 (C10) or Cifar-100 (C100).
type DataSource int

const (
	C10 DataSource = iota
	C100
)

// NumClasses of the source: 10 for C10, 100 for C100 (fine labels).
func (source DataSource) NumClasses() int {
	if source == C100 {
		return 100
	}
	return 10
}

// Partition refers to the train or test partitions of the datasets.
type Partition int

const (
	Train Partition = iota
	Test
)

// ImagesAndLabels holds the images tensor, shaped
// [numExamples, Height, Width, Depth], and the labels tensor, shaped
// [numExamples, 1] of Int64.
type ImagesAndLabels struct {
	images, labels *tensors.Tensor
}

// PartitionedImagesAndLabels holds one ImagesAndLabels per partition
// (Train, Test).
type PartitionedImagesAndLabels [2]ImagesAndLabels

func newPartitioned(dtype dtypes.DType) (partitioned PartitionedImagesAndLabels) {
	for part, numExamples := range []int{NumTrainExamples, NumTestExamples} {
		partitioned[part] = ImagesAndLabels{
			images: tensors.FromShape(shapes.Make(dtype, numExamples, Height, Width, Depth)),
			labels: tensors.FromShape(shapes.Make(dtypes.Int64, numExamples, 1)),
		}
	}
	return
}

// convertBytesToTensor transposes one raw example from the file layout
// (channel-major planes) to the tensor layout (channels-last) and scales the
// bytes to [0, 1].
func convertBytesToTensor[T dtypes.GoFloat](rawImage []byte, imagesT *tensors.Tensor, exampleNum int) {
	tensors.MutableFlatData[T](imagesT, func(tensorData []T) {
		tensorPos := exampleNum * imageSizeBytes
		for h := 0; h < Height; h++ {
			for w := 0; w < Width; w++ {
				for d := 0; d < Depth; d++ {
					value := T(rawImage[d*(Height*Width)+h*(Width)+w]) / T(255)
					tensorData[tensorPos] = value
					tensorPos++
				}
			}
		}
	})
}

// readExamples reads count fixed-size records from r into target, starting at
// example startIdx. Each record is numLabelBytes label bytes followed by the
// raw image; the last label byte is the (fine) class.
func readExamples(r io.Reader, dataFile string, target ImagesAndLabels, startIdx, count, numLabelBytes int) {
	dtype := target.images.DType()
	record := make([]byte, numLabelBytes+imageSizeBytes)
	tensors.MutableFlatData[int64](target.labels, func(labelsData []int64) {
		for inFileIdx := 0; inFileIdx < count; inFileIdx++ {
			exampleIdx := startIdx + inFileIdx
			if _, err := io.ReadFull(r, record); err != nil {
				panic(errors.Wrapf(err, "reading example %d (out of %d) from %q",
					inFileIdx, count, dataFile))
			}
			switch dtype {
			case dtypes.Float64:
				convertBytesToTensor[float64](record[numLabelBytes:], target.images, exampleIdx)
			case dtypes.Float32:
				convertBytesToTensor[float32](record[numLabelBytes:], target.images, exampleIdx)
			default:
				Panicf("DType %s not supported, only Float32 and Float64", dtype)
			}
			labelsData[exampleIdx] = int64(record[numLabelBytes-1])
		}
	})
}

// LoadCifar10 parses the downloaded CIFAR-10 binaries under baseDir into
// tensors of the given DType, already partitioned into the 50k training and
// 10k test examples. Only Float32 and Float64 dtypes are supported for now.
func LoadCifar10(baseDir string, dtype dtypes.DType) (partitioned PartitionedImagesAndLabels) {
	baseDir = data.ReplaceTildeInDir(baseDir)
	partitioned = newPartitioned(dtype)
	for fileIdx := 0; fileIdx < 6; fileIdx++ {
		fileName := fmt.Sprintf("data_batch_%d.bin", fileIdx+1)
		part, startIdx := Train, fileIdx*c10ExamplesPerFile
		if fileIdx == 5 {
			fileName = "test_batch.bin"
			part, startIdx = Test, 0
		}
		dataFile := path.Join(baseDir, C10SubDir, fileName)
		f, err := os.Open(dataFile)
		if err != nil {
			panic(errors.Wrapf(err, "opening data file %q", dataFile))
		}
		readExamples(f, dataFile, partitioned[part], startIdx, c10ExamplesPerFile, 1)
		_ = f.Close()
	}
	return
}

// LoadCifar100 parses the downloaded CIFAR-100 binaries under baseDir into
// tensors of the given DType, already partitioned into the 50k training and
// 10k test examples. Labels are the fine labels (the coarse label byte is
// discarded). Only Float32 and Float64 dtypes are supported for now.
func LoadCifar100(baseDir string, dtype dtypes.DType) (partitioned PartitionedImagesAndLabels) {
	baseDir = data.ReplaceTildeInDir(baseDir)
	partitioned = newPartitioned(dtype)
	for part, spec := range []struct {
		fileName    string
		numExamples int
	}{
		{"train.bin", NumTrainExamples},
		{"test.bin", NumTestExamples},
	} {
		dataFile := path.Join(baseDir, C100SubDir, spec.fileName)
		f, err := os.Open(dataFile)
		if err != nil {
			panic(errors.Wrapf(err, "opening data file %q", dataFile))
		}
		readExamples(f, dataFile, partitioned[part], 0, spec.numExamples, 2)
		_ = f.Close()
	}
	return
}

// ConvertToGoImage converts one example of an images tensor (as returned by
// LoadCifar10/LoadCifar100) back to a Go image.
func ConvertToGoImage(imagesT *tensors.Tensor, exampleNum int) *image.NRGBA {
	switch imagesT.DType() {
	case dtypes.Float64:
		return tensorToGoImage[float64](imagesT, exampleNum)
	case dtypes.Float32:
		return tensorToGoImage[float32](imagesT, exampleNum)
	default:
		Panicf("DType %s not supported, only Float32 and Float64", imagesT.DType())
	}
	return nil
}

func tensorToGoImage[T dtypes.GoFloat](imagesT *tensors.Tensor, exampleNum int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, Width, Height))
	tensors.ConstFlatData[T](imagesT, func(tensorData []T) {
		tensorPos := exampleNum * imageSizeBytes
		for h := 0; h < Height; h++ {
			for w := 0; w < Width; w++ {
				for d := 0; d < Depth; d++ {
					img.Pix[h*img.Stride+w*4+d] = uint8(float64(tensorData[tensorPos]) * 255)
					tensorPos++
				}
				img.Pix[h*img.Stride+w*4+3] = uint8(255) // Alpha channel.
			}
		}
	})
	return img
}

// Cache of loaded data: one per DataSource, per DType.
var imagesAndLabelsCache [2]map[dtypes.DType]PartitionedImagesAndLabels

// ResetCache drops the cached parsed datasets, forcing the next NewDataset to
// re-read the files.
func ResetCache() {
	imagesAndLabelsCache = [2]map[dtypes.DType]PartitionedImagesAndLabels{
		make(map[dtypes.DType]PartitionedImagesAndLabels), // Cifar10
		make(map[dtypes.DType]PartitionedImagesAndLabels), // Cifar100
	}
}

func init() {
	ResetCache()
}

// NewDataset returns a Dataset for one partition of one of the data sources,
// which implements train.Dataset and hence can be used by train.Trainer
// methods.
//
// It automatically downloads the data from the web, and then loads the data
// into memory if it hasn't been loaded yet. It caches the result, so multiple
// Datasets can be created without any extra costs in time/memory.
func NewDataset(
	backend backends.Backend,
	name, baseDir string,
	source DataSource,
	dtype dtypes.DType,
	partition Partition,
) *data.InMemoryDataset {
	if source != C10 && source != C100 {
		Panicf("invalid source value %d, only C10 or C100 accepted", source)
	}
	partitioned, found := imagesAndLabelsCache[source][dtype]
	if !found {
		downloadFns := [2]func(baseDir string) error{DownloadCifar10, DownloadCifar100}
		loadFns := [2]func(baseDir string, dtype dtypes.DType) PartitionedImagesAndLabels{
			LoadCifar10, LoadCifar100}
		if err := downloadFns[source](baseDir); err != nil {
			panic(errors.WithMessagef(err, "downloading dataset for a new Dataset"))
		}
		partitioned = loadFns[source](baseDir, dtype)
		imagesAndLabelsCache[source][dtype] = partitioned
	}
	imagesAndLabels := partitioned[partition]
	ds, err := data.InMemoryFromData(backend, name,
		[]any{imagesAndLabels.images}, []any{imagesAndLabels.labels})
	if err != nil {
		panic(err)
	}
	return ds
}

// CreateDatasets returns the three datasets a training session uses: an
// infinite shuffled batched training dataset, plus one-epoch evaluation
// datasets on the train and test partitions.
func CreateDatasets(backend backends.Backend, baseDir string, source DataSource,
	dtype dtypes.DType, batchSize, evalBatchSize int) (trainDS, trainEvalDS, testEvalDS train.Dataset) {
	baseTrain := NewDataset(backend, "Training", baseDir, source, dtype, Train)
	baseTest := NewDataset(backend, "Validation", baseDir, source, dtype, Test)
	trainDS = baseTrain.Copy().BatchSize(batchSize, true).Shuffle().Infinite(true)
	trainEvalDS = baseTrain.BatchSize(evalBatchSize, false)
	testEvalDS = baseTest.BatchSize(evalBatchSize, false)
	return
}
