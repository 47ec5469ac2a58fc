// Copyright (c) 2020, The NL-FuN Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// feudalproc runs the feudal trajectory pipeline headless: a collector
// drives the gridworld environment, the windowing processor turns the
// fragments into training batches, and per-batch summary stats go to an
// etable log, optionally saved as a .tsv file.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"

	"github.com/emer/emergent/params"
	"github.com/emer/etable/etable"
	"github.com/emer/etable/etensor"
	"github.com/emer/etable/tsragg"

	"github.com/sapiosexual/NL-FuN/feudal"
	"github.com/sapiosexual/NL-FuN/trajenv"
)

func main() {
	ss := &Sim{}
	ss.New()
	// params first, then flags: flag defaults are the post-params values,
	// so explicit flags override the compiled-in sheets
	if err := ss.SetParams("", false); err != nil {
		log.Fatal(err)
	}
	ss.CmdArgs()
	if err := ss.Config(); err != nil {
		log.Fatal(err)
	}
	if ss.LogFile != nil {
		defer ss.LogFile.Close()
	}
	ss.Init()
	if err := ss.Run(); err != nil {
		log.Fatal(err)
	}
}

// LogPrec is precision for saving float values in logs
const LogPrec = 4

// ParamSets is the default set of parameters -- Base is always applied, and
// others can be optionally selected to apply on top of that
var ParamSets = params.Sets{
	{Name: "Base", Desc: "these are the best params", Sheets: params.Sheets{
		"Sim": &params.Sheet{ // sim params apply to sim object
			{Sel: "Sim", Desc: "standard pipeline sizes",
				Params: params.Params{
					"Sim.Horizon":  "10",
					"Sim.FragLen":  "40",
					"Sim.NBatches": "50",
				}},
		},
	}},
	{Name: "ShortHorizon", Desc: "small windows for quick inspection runs", Sheets: params.Sheets{
		"Sim": &params.Sheet{
			{Sel: "Sim", Desc: "small windows",
				Params: params.Params{
					"Sim.Horizon":  "3",
					"Sim.FragLen":  "12",
					"Sim.NBatches": "10",
				}},
		},
	}},
}

// Sim holds the pipeline and all its parameters, in the standard
// sim-object layout so params sheets apply directly to its fields.
type Sim struct {
	Horizon   int               `desc:"temporal horizon c for the windowing processor"`
	FragLen   int               `desc:"number of env steps collected per fragment"`
	NBatches  int               `desc:"number of fragments to collect and process"`
	EpLen     int               `desc:"episode length in env steps"`
	EmbedDim  int               `desc:"embedding dimensionality for states and goals"`
	Tag       string            `desc:"extra tag to add to file names saved from this run"`
	Params    params.Sets       `view:"no-inline" desc:"full collection of param sets"`
	ParamSet  string            `desc:"which set of params to use -- must be valid name as listed in compiled-in params"`
	Env       trajenv.Env       `desc:"gridworld environment"`
	Collector trajenv.Collector `desc:"trajectory collector driving the env"`
	Proc      *feudal.Processor `view:"-" desc:"temporal windowing processor"`
	BatchLog  *etable.Table     `view:"no-inline" desc:"per-batch summary log"`
	LogFile   *os.File          `view:"-" desc:"log file"`
	RndSeed   int64             `desc:"the current random seed"`
}

// New creates new blank elements and initializes defaults
func (ss *Sim) New() {
	ss.Horizon = 10
	ss.FragLen = 40
	ss.NBatches = 50
	ss.EpLen = 64
	ss.EmbedDim = 8
	ss.Params = ParamSets
	ss.BatchLog = &etable.Table{}
	ss.RndSeed = 1
}

// Config configures all the elements using the standard functions
func (ss *Sim) Config() error {
	if ss.ParamSet != "" && ss.ParamSet != "Base" {
		if err := ss.SetParamsSet(ss.ParamSet, "", false); err != nil {
			return err
		}
	}
	ss.ConfigEnv()
	pr, err := feudal.NewProcessor(ss.Horizon)
	if err != nil {
		return err
	}
	ss.Proc = pr
	ss.ConfigBatchLog(ss.BatchLog)
	return nil
}

func (ss *Sim) ConfigEnv() {
	ss.Env.Nm = "TrajEnv"
	ss.Env.Dsc = "gridworld driving the feudal trajectory pipeline"
	ss.Env.Defaults()
	ss.Env.Event.Max = ss.EpLen
	ss.Env.Validate()

	ss.Collector.Env = &ss.Env
	ss.Collector.Defaults()
	ss.Collector.Horizon = ss.Horizon
	ss.Collector.EmbedDim = ss.EmbedDim
}

// Init restarts the run and all state, using the current random seed.
func (ss *Sim) Init() {
	rand.Seed(ss.RndSeed)
	ss.Env.Init(0)
	ss.Collector.Init()
	ss.Proc.Reset()
	ss.BatchLog.SetNumRows(0)
}

// Run collects and processes NBatches fragments, logging each batch.
func (ss *Sim) Run() error {
	for bi := 0; bi < ss.NBatches; bi++ {
		tb := ss.Collector.Collect(ss.FragLen)
		b, err := ss.Proc.ProcessBatch(tb)
		if err != nil {
			return fmt.Errorf("batch %d: %w", bi, err)
		}
		ss.LogBatch(ss.BatchLog, bi, b)
	}
	return nil
}

// SetParams sets the params for "Base" and then current ParamSet.
// If sheet is empty, then it applies all avail sheets (e.g., Sim)
// otherwise just the named sheet
// if setMsg = true then we output a message for each param that was set.
func (ss *Sim) SetParams(sheet string, setMsg bool) error {
	if sheet == "" {
		// this is important for catching typos and ensuring that all sheets can be used
		ss.Params.ValidateSheets([]string{"Sim"})
	}
	err := ss.SetParamsSet("Base", sheet, setMsg)
	if ss.ParamSet != "" && ss.ParamSet != "Base" {
		err = ss.SetParamsSet(ss.ParamSet, sheet, setMsg)
	}
	return err
}

// SetParamsSet sets the params for given params.Set name.
// If sheet is empty, then it applies all avail sheets (e.g., Sim)
// otherwise just the named sheet
// if setMsg = true then we output a message for each param that was set.
func (ss *Sim) SetParamsSet(setNm string, sheet string, setMsg bool) error {
	pset, err := ss.Params.SetByNameTry(setNm)
	if err != nil {
		return err
	}
	if sheet == "" || sheet == "Sim" {
		simp, ok := pset.Sheets["Sim"]
		if ok {
			simp.Apply(ss, setMsg)
		}
	}
	return err
}

////////////////////////////////////////////////////////////////////////////////////////////
// 		Logging

// LogBatch adds data from the given processed batch to the BatchLog table.
func (ss *Sim) LogBatch(dt *etable.Table, bi int, b *feudal.Batch) {
	row := dt.Rows
	dt.SetNumRows(row + 1)

	dt.SetCellFloat("Batch", row, float64(bi))
	dt.SetCellFloat("Recs", row, float64(b.NumRecs))
	dt.SetCellFloat("StartIdx", row, float64(b.Idx))
	if b.NumRecs > 0 {
		dt.SetCellFloat("MeanRi", row, tsragg.Mean(b.Ri))
		dt.SetCellFloat("MeanMgrRet", row, tsragg.Mean(b.MgrRet))
		dt.SetCellFloat("MeanWkrRet", row, tsragg.Mean(b.WkrRet))
		dt.SetCellFloat("MeanSDiff", row, tsragg.Mean(b.SDiff))
	}

	if ss.LogFile != nil {
		if row == 0 {
			dt.WriteCSVHeaders(ss.LogFile, etable.Tab)
		}
		dt.WriteCSVRow(ss.LogFile, row, etable.Tab)
	}
}

func (ss *Sim) ConfigBatchLog(dt *etable.Table) {
	dt.SetMetaData("name", "BatchLog")
	dt.SetMetaData("desc", "Summary stats per processed trajectory batch")
	dt.SetMetaData("read-only", "true")
	dt.SetMetaData("precision", strconv.Itoa(LogPrec))

	sch := etable.Schema{
		{Name: "Batch", Type: etensor.INT64},
		{Name: "Recs", Type: etensor.INT64},
		{Name: "StartIdx", Type: etensor.INT64},
		{Name: "MeanRi", Type: etensor.FLOAT64},
		{Name: "MeanMgrRet", Type: etensor.FLOAT64},
		{Name: "MeanWkrRet", Type: etensor.FLOAT64},
		{Name: "MeanSDiff", Type: etensor.FLOAT64},
	}
	dt.SetFromSchema(sch, 0)
}

// RunName returns a name for this run that combines Tag and Params -- add
// this to any file names that are saved.
func (ss *Sim) RunName() string {
	if ss.Tag != "" {
		return ss.Tag + "_" + ss.ParamsName()
	}
	return ss.ParamsName()
}

// ParamsName returns name of current set of parameters
func (ss *Sim) ParamsName() string {
	if ss.ParamSet == "" {
		return "Base"
	}
	return ss.ParamSet
}

// CmdArgs parses the command-line args and opens the log file if requested.
func (ss *Sim) CmdArgs() {
	var saveLog bool
	flag.StringVar(&ss.ParamSet, "params", "", "ParamSet name to use -- must be valid name as listed in compiled-in params")
	flag.StringVar(&ss.Tag, "tag", "", "extra tag to add to file names saved from this run")
	flag.IntVar(&ss.Horizon, "c", ss.Horizon, "temporal horizon for the windowing processor")
	flag.IntVar(&ss.FragLen, "frag", ss.FragLen, "number of env steps collected per fragment")
	flag.IntVar(&ss.NBatches, "batches", ss.NBatches, "number of fragments to collect and process")
	flag.IntVar(&ss.EpLen, "eplen", ss.EpLen, "episode length in env steps")
	flag.Int64Var(&ss.RndSeed, "seed", ss.RndSeed, "random seed for the run")
	flag.BoolVar(&saveLog, "batchlog", true, "if true, save batch log to file")
	flag.Parse()

	if saveLog {
		fnm := "feudalproc_" + ss.RunName() + "_batch.tsv"
		var err error
		ss.LogFile, err = os.Create(fnm)
		if err != nil {
			log.Println(err)
			ss.LogFile = nil
		} else {
			fmt.Printf("Saving batch log to: %v\n", fnm)
		}
	}
}
