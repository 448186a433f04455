package palette

import (
	"errors"
	"fmt"
)

// MaxBits - максимальная поддерживаемая ширина элемента
const MaxBits = 32

// ErrMalformedStorage - данные хранилища не согласованы с объявленным размером
var ErrMalformedStorage = errors.New("malformed palette storage")

// Storage хранит индексы палитры для каждой ячейки
type Storage interface {
	// Len возвращает объявленное количество ячеек
	Len() int
	// Get возвращает индекс палитры ячейки i
	Get(i int) int
	// Set записывает индекс палитры ячейки i
	Set(i int, v int)
	// ForEach обходит ячейки по порядку, начиная с 0
	ForEach(fn func(index, value int))
}

// PackedStorage - упакованный массив индексов в 64-битных словах
type PackedStorage struct {
	bits    int
	size    int
	perWord int
	mask    uint64
	data    []uint64
}

// WordsFor возвращает количество слов для size элементов шириной bits
func WordsFor(bits, size int) int {
	perWord := 64 / bits
	return (size + perWord - 1) / perWord
}

// NewPackedStorage создаёт упакованное хранилище.
// Если data == nil, выделяется обнулённый массив нужной длины.
func NewPackedStorage(bits, size int, data []uint64) (*PackedStorage, error) {
	if bits < 1 || bits > MaxBits {
		return nil, fmt.Errorf("%w: ширина элемента %d вне [1, %d]", ErrMalformedStorage, bits, MaxBits)
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: отрицательный размер %d", ErrMalformedStorage, size)
	}

	words := WordsFor(bits, size)
	if data == nil {
		data = make([]uint64, words)
	} else if len(data) != words {
		return nil, fmt.Errorf("%w: %d слов для %d элементов по %d бит, ожидалось %d",
			ErrMalformedStorage, len(data), size, bits, words)
	}

	return &PackedStorage{
		bits:    bits,
		size:    size,
		perWord: 64 / bits,
		mask:    (uint64(1) << bits) - 1,
		data:    data,
	}, nil
}

// Bits возвращает ширину элемента в битах
func (s *PackedStorage) Bits() int { return s.bits }

// Len возвращает количество ячеек
func (s *PackedStorage) Len() int { return s.size }

// Raw возвращает упакованные слова без копирования
func (s *PackedStorage) Raw() []uint64 { return s.data }

// Get возвращает элемент i (наивный путь с делением на каждую ячейку)
func (s *PackedStorage) Get(i int) int {
	word := i / s.perWord
	shift := uint((i % s.perWord) * s.bits)
	return int((s.data[word] >> shift) & s.mask)
}

// Set записывает элемент i. Значение обрезается маской.
func (s *PackedStorage) Set(i int, v int) {
	word := i / s.perWord
	shift := uint((i % s.perWord) * s.bits)
	s.data[word] = s.data[word]&^(s.mask<<shift) | (uint64(v)&s.mask)<<shift
}

// ForEach обходит элементы по словам. Остановка определяется счётчиком ячеек,
// а не границами слов: биты выравнивания последнего слова не читаются.
func (s *PackedStorage) ForEach(fn func(index, value int)) {
	ForEachPacked(s.bits, s.size, s.data, fn)
}

// ForEachPacked распаковывает size элементов шириной bits из data.
// Возвращает количество фактически декодированных элементов: оно меньше size,
// только если data короче объявленного размера.
func ForEachPacked(bits, size int, data []uint64, fn func(index, value int)) int {
	if size <= 0 {
		return 0
	}
	perWord := 64 / bits
	mask := (uint64(1) << bits) - 1

	i := 0
	for _, word := range data {
		for j := 0; j < perWord; j++ {
			fn(i, int(word&mask))
			word >>= uint(bits)
			i++
			if i >= size {
				return i
			}
		}
	}
	return i
}

// ArrayStorage - распакованное хранилище, по одному int32 на ячейку
type ArrayStorage struct {
	values []int32
}

// NewArrayStorage создаёт распакованное хранилище из size ячеек
func NewArrayStorage(size int) *ArrayStorage {
	return &ArrayStorage{values: make([]int32, size)}
}

// ArrayStorageOf оборачивает готовый срез без копирования
func ArrayStorageOf(values []int32) *ArrayStorage {
	return &ArrayStorage{values: values}
}

func (s *ArrayStorage) Len() int         { return len(s.values) }
func (s *ArrayStorage) Get(i int) int    { return int(s.values[i]) }
func (s *ArrayStorage) Set(i int, v int) { s.values[i] = int32(v) }

// ForEach обходит ячейки напрямую
func (s *ArrayStorage) ForEach(fn func(index, value int)) {
	for i, v := range s.values {
		fn(i, int(v))
	}
}
