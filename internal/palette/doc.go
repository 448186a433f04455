// Package palette реализует хранение блоков секции через палитру.
//
// Секция - это 4096 ячеек, каждая из которых хранит не глобальный ID состояния,
// а индекс в палитре секции. Индексы хранятся либо в упакованном виде
// (PackedStorage), либо в распакованном массиве (ArrayStorage).
//
// Раскладка PackedStorage является частью формата данных, а не деталью реализации:
// каждое 64-битное слово содержит floor(64/bits) элементов, элемент k слова
// занимает биты [k*bits, (k+1)*bits) - младшие биты идут первыми (little-endian).
// Элементы никогда не переходят через границу слова, неиспользуемые старшие биты
// слова - нулевое выравнивание. Ошибка в порядке битов молча портит позиции.
package palette
