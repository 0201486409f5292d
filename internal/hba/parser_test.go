package hba

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Captured from 'sas3ircu list' on a dual-HBA host.
const sampleList = `Avago Technologies SAS3 IR Configuration Utility.
Version 17.00.00.00 (2018.04.02)
Copyright (c) 2009-2018 Avago Technologies. All rights reserved.


         Adapter      Vendor  Device                       SubSys  SubSys
 Index    Type          ID      ID    Pci Address          Ven ID  Dev ID
 -----  ------------  ------  ------  -----------------    ------  ------
   0     SAS3008     1000h    97h   00h:01h:00h:00h      1028h   1f45h
   3     SAS3008     1000h    97h   00h:02h:00h:00h      1028h   1f45h
SAS3IRCU: Utility Completed Successfully.
`

const sampleDisplay = `Avago Technologies SAS3 IR Configuration Utility.
Version 17.00.00.00 (2018.04.02)
Copyright (c) 2009-2018 Avago Technologies. All rights reserved.

Physical device information
------------------------------------------------------------------------
Initiator at ID #0

Device is a Hard disk
  Enclosure #                             : 2
  Slot #                                  : 0
  SAS Address                             : 5000c50-0-d006-8912
  State                                   : Ready (RDY)
  Size (in MB)/(in sectors)               : 7501160/15362376263
  Manufacturer                            : SEAGATE
  Model Number                            : ST8000NM0075
  Firmware Revision                       : E002
  Serial No                               : ZR50MFBH
  Unit Serial No(VPD)                     : ZR50MFBH0000C906
  GUID                                    : 5000c500d0068913
  Protocol                                : SAS
  Drive Type                              : SAS_HDD

Device is a Hard disk
  Serial No                               : ZR50ABCD
  Model Number                            : ST8000NM0075
  Slot #                                  : 5
  Enclosure #                             : 2
  Size (in MB)/(in sectors)               : 7501160/15362376263
  Protocol                                : SAS
  Drive Type                              : SAS_HDD

Device is a Hard disk
  Enclosure #                             : 2
  Slot #                                  : 7
  State                                   : Ready (RDY)
  Model Number                            : ST8000NM0075
  Protocol                                : SAS
  Drive Type                              : SAS_HDD

Enclosure information
------------------------------------------------------------------------
  Enclosure#                              : 1
  Logical ID                              : 51866da0:5a394100
  Numslots                                : 9
SAS3IRCU: Utility Completed Successfully.
`

func TestParseAdapterList(t *testing.T) {
	adapters := ParseAdapterList(sampleList, "sas3ircu")

	require.Len(t, adapters, 2)
	assert.Equal(t, Adapter{ID: 0, Family: "SAS3008", Binary: "sas3ircu"}, adapters[0])
	assert.Equal(t, Adapter{ID: 3, Family: "SAS3008", Binary: "sas3ircu"}, adapters[1])
}

func TestParseAdapterListIgnoresNoise(t *testing.T) {
	assert.Empty(t, ParseAdapterList("SAS3IRCU: No Controllers Found.\n", "sas3ircu"))
	assert.Empty(t, ParseAdapterList("", "sas2ircu"))
}

func TestParseDisplay(t *testing.T) {
	adapter := Adapter{ID: 0, Family: "SAS3008", Binary: "sas3ircu"}
	drives := ParseDisplay(sampleDisplay, adapter)

	// The third block has no serial and must be dropped.
	require.Len(t, drives, 2)

	assert.Equal(t, DriveRecord{
		AdapterID:     0,
		AdapterBinary: "sas3ircu",
		Enclosure:     2,
		Slot:          0,
		Serial:        "ZR50MFBH",
		Model:         "ST8000NM0075",
		SizeMB:        7501160,
	}, drives[0])

	// Field order within a block doesn't matter.
	assert.Equal(t, "ZR50ABCD", drives[1].Serial)
	assert.Equal(t, 2, drives[1].Enclosure)
	assert.Equal(t, 5, drives[1].Slot)
}

func TestParseDisplayIncompleteBlocks(t *testing.T) {
	adapter := Adapter{ID: 1, Binary: "sas2ircu"}

	// Serial present but no slot: dropped.
	noSlot := `Device is a Hard disk
  Enclosure #                             : 1
  Serial No                               : AAAA1111
  Protocol                                : SAS
`
	assert.Empty(t, ParseDisplay(noSlot, adapter))

	// No terminator before end of output: dropped.
	noTerminator := `Device is a Hard disk
  Enclosure #                             : 1
  Slot #                                  : 2
  Serial No                               : AAAA1111
`
	assert.Empty(t, ParseDisplay(noTerminator, adapter))
}

func TestNormalizeSerial(t *testing.T) {
	assert.Equal(t, "ZR50MFBH", NormalizeSerial("  zr50mfbh "))
}
