// Package scan находит в секциях чанка ячейки, которым маппинг назначает визарда.
package scan

import (
	"errors"
	"fmt"
	"time"

	"github.com/annel0/polyview/internal/metrics"
	"github.com/annel0/polyview/internal/palette"
	"github.com/annel0/polyview/internal/polymap"
	"github.com/annel0/polyview/internal/world/block"
)

// DefaultDirectThreshold - с такого размера палитры предрасчёт по слотам не окупается
const DefaultDirectThreshold = 64

// ErrMalformedSection - данные секции противоречат палитре или объявленному размеру
var ErrMalformedSection = errors.New("malformed section data")

// Path - выбранный сканером способ обхода секции
type Path uint8

const (
	PathEmpty   Path = iota // пустое хранилище
	PathSkipped             // ни один слот палитры не требует визарда
	PathPalette             // предрасчёт обработчиков по слотам палитры
	PathDirect              // запрос к маппингу для каждой ячейки
)

func (p Path) String() string {
	switch p {
	case PathEmpty:
		return "empty"
	case PathSkipped:
		return "skipped"
	case PathPalette:
		return "palette"
	case PathDirect:
		return "direct"
	default:
		return "unknown"
	}
}

// VisitFunc получает индекс ячейки и обработчик, которому нужен визард
type VisitFunc func(index int, poly polymap.BlockPoly)

// Scanner декодирует хранилище секции и сообщает о ячейках с визардами
type Scanner struct {
	Resolver        block.StateResolver
	DirectThreshold int
}

// New создаёт сканер с порогом по умолчанию
func New(resolver block.StateResolver) *Scanner {
	return &Scanner{Resolver: resolver, DirectThreshold: DefaultDirectThreshold}
}

func (s *Scanner) threshold() int {
	if s.DirectThreshold <= 0 {
		return DefaultDirectThreshold
	}
	return s.DirectThreshold
}

// Scan обходит хранилище st с палитрой p и вызывает visit для каждой ячейки,
// чей блок требует визарда в маппинге m. При повреждённых данных visit мог
// успеть вызваться для части ячеек; вызывающий должен отбросить результат.
func (s *Scanner) Scan(m polymap.PolyMap, p palette.Palette, st palette.Storage, visit VisitFunc) (Path, error) {
	if st.Len() == 0 {
		return PathEmpty, nil
	}

	start := time.Now()
	var (
		path Path
		err  error
	)
	if p.Len() < s.threshold() {
		path, err = s.scanPalette(m, p, st, visit)
	} else {
		path, err = s.scanDirect(m, p, st, visit)
	}
	metrics.ScanDuration.WithLabelValues(path.String()).Observe(time.Since(start).Seconds())
	return path, err
}

// scanPalette разрешает обработчик один раз на слот палитры, а затем читает ячейки
func (s *Scanner) scanPalette(m polymap.PolyMap, p palette.Palette, st palette.Storage, visit VisitFunc) (Path, error) {
	slots := make([]polymap.BlockPoly, p.Len())
	found := false
	for i := range slots {
		state, ok := p.Get(i)
		if !ok {
			continue
		}
		id, ok := s.Resolver.BlockOf(state)
		if !ok {
			continue
		}
		if poly := polymap.WizardPoly(m, id); poly != nil {
			slots[i] = poly
			found = true
		}
	}
	if !found {
		return PathSkipped, nil
	}

	bad := -1
	err := forEachCell(st, func(index, value int) {
		if value < 0 || value >= len(slots) {
			if bad < 0 {
				bad = index
			}
			return
		}
		if poly := slots[value]; poly != nil {
			visit(index, poly)
		}
	})
	if err == nil && bad >= 0 {
		err = fmt.Errorf("%w: ячейка %d ссылается за пределы палитры размера %d", ErrMalformedSection, bad, len(slots))
	}
	return PathPalette, err
}

// scanDirect разрешает каждую ячейку отдельно
func (s *Scanner) scanDirect(m polymap.PolyMap, p palette.Palette, st palette.Storage, visit VisitFunc) (Path, error) {
	if !m.HasBlockWizards() {
		return PathSkipped, nil
	}

	bad := -1
	err := forEachCell(st, func(index, value int) {
		state, ok := p.Get(value)
		if !ok {
			if bad < 0 {
				bad = index
			}
			return
		}
		id, ok := s.Resolver.BlockOf(state)
		if !ok {
			return
		}
		if poly := polymap.WizardPoly(m, id); poly != nil {
			visit(index, poly)
		}
	})
	if err == nil && bad >= 0 {
		err = fmt.Errorf("%w: ячейка %d ссылается за пределы палитры размера %d", ErrMalformedSection, bad, p.Len())
	}
	return PathDirect, err
}

// PackedWords - хранилище, отдающее упакованные слова напрямую
type PackedWords interface {
	palette.Storage
	Bits() int
	Raw() []uint64
}

// forEachCell обходит ровно Len() ячеек. Упакованное хранилище распаковывается
// по словам; если слов не хватило на объявленный размер, возвращается ошибка.
func forEachCell(st palette.Storage, fn func(index, value int)) error {
	packed, ok := st.(PackedWords)
	if !ok {
		st.ForEach(fn)
		return nil
	}

	n := palette.ForEachPacked(packed.Bits(), packed.Len(), packed.Raw(), fn)
	if n != packed.Len() {
		return fmt.Errorf("%w: декодировано %d ячеек из %d", ErrMalformedSection, n, packed.Len())
	}
	return nil
}
