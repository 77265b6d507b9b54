package chunk

import (
	"github.com/annel0/mca-tools/internal/blockstate"
	"github.com/annel0/mca-tools/internal/nbt"
)

// FlatRootDataVersion первая версия без обёртки Level и с block_states
const FlatRootDataVersion = 2844

// NewRoot строит корень пустого чанка с секциями sectionYs, заполненными
// воздухом. Формат выбирается по dataVersion.
func NewRoot(x, z, dataVersion int, sectionYs ...int) nbt.Tag {
	air := blockstate.PaletteEntry(blockstate.Air)

	sections := make([]nbt.Payload, 0, len(sectionYs))
	for _, y := range sectionYs {
		if dataVersion >= FlatRootDataVersion {
			sections = append(sections, nbt.NewCompound(
				nbt.NewByte("Y", int8(y)),
				nbt.NewCompoundTag("block_states", nbt.NewList("palette", nbt.KindCompound, air)),
			))
			continue
		}

		layout := blockstate.Legacy
		if dataVersion >= PaddedPackingDataVersion {
			layout = blockstate.Current
		}
		data, _ := blockstate.EncodeWidth(make([]int, SectionVolume), olderKeys.minWidth, layout)
		sections = append(sections, nbt.NewCompound(
			nbt.NewByte("Y", int8(y)),
			nbt.NewList("Palette", nbt.KindCompound, air),
			nbt.Tag{Name: "BlockStates", Payload: data},
		))
	}

	if dataVersion >= FlatRootDataVersion {
		minY := 0
		for i, y := range sectionYs {
			if i == 0 || y < minY {
				minY = y
			}
		}
		return nbt.NewCompoundTag("",
			nbt.NewInt("DataVersion", int32(dataVersion)),
			nbt.NewInt("xPos", int32(x)),
			nbt.NewInt("yPos", int32(minY)),
			nbt.NewInt("zPos", int32(z)),
			nbt.NewString("Status", "minecraft:full"),
			nbt.NewList("sections", nbt.KindCompound, sections...),
		)
	}

	return nbt.NewCompoundTag("",
		nbt.NewInt("DataVersion", int32(dataVersion)),
		nbt.NewCompoundTag("Level",
			nbt.NewInt("xPos", int32(x)),
			nbt.NewInt("zPos", int32(z)),
			nbt.NewList("Sections", nbt.KindCompound, sections...),
		),
	)
}
