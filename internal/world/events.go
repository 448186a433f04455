package world

// ChunkEvent - полезная нагрузка событий загрузки и выгрузки чанка
type ChunkEvent struct {
	X      int  `json:"x"`
	Z      int  `json:"z"`
	Stored bool `json:"stored,omitempty"`
}

// BlockEvent - полезная нагрузка события изменения блока
type BlockEvent struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
	State uint32 `json:"state"`
	Prev  uint32 `json:"prev"`
	Moved bool   `json:"moved,omitempty"`
}

// PlayerEvent - полезная нагрузка событий видимости игрока в мире
type PlayerEvent struct {
	ID string `json:"id"`
}
