package model

import (
	"time"
)

// Role 候选人职位
type Role string

const (
	RoleMayor       Role = "mayor"
	RoleDeputyMayor Role = "deputy_mayor"
)

// ElectionStatus 选举状态，除 Terminated 外均由当前时间推导
type ElectionStatus string

const (
	StatusScheduled  ElectionStatus = "SCHEDULED"
	StatusActive     ElectionStatus = "ACTIVE"
	StatusExpired    ElectionStatus = "EXPIRED"
	StatusTerminated ElectionStatus = "TERMINATED"
)

// Election 选举
type Election struct {
	ElectionID             string    `json:"electionId"`
	Name                   string    `json:"name"`
	StartTime              time.Time `json:"startTime"`
	EndTime                time.Time `json:"endTime"`
	District               string    `json:"district,omitempty"`
	Municipality           string    `json:"municipality,omitempty"`
	DisabledMunicipalities []string  `json:"disabledMunicipalities"`
	Terminated             bool      `json:"terminated"`
}

// StatusAt 返回选举在 now 时刻的状态
func (e *Election) StatusAt(now time.Time) ElectionStatus {
	switch {
	case now.Before(e.StartTime):
		return StatusScheduled
	case now.Before(e.EndTime):
		return StatusActive
	case e.Terminated:
		return StatusTerminated
	default:
		return StatusExpired
	}
}

// ActiveAt 当前时间是否落在 [StartTime, EndTime) 内
func (e *Election) ActiveAt(now time.Time) bool {
	return !now.Before(e.StartTime) && now.Before(e.EndTime)
}

// Overlaps 两个半开区间是否相交
func (e *Election) Overlaps(start, end time.Time) bool {
	return e.StartTime.Before(end) && e.EndTime.After(start)
}

// IsMunicipalityDisabled 市是否已在本次选举中被禁用
func (e *Election) IsMunicipalityDisabled(municipality string) bool {
	for _, m := range e.DisabledMunicipalities {
		if m == municipality {
			return true
		}
	}
	return false
}

// Covers 有作用域的子选举只覆盖对应的区/市
func (e *Election) Covers(district, municipality string) bool {
	if e.District != "" && e.District != district {
		return false
	}
	if e.Municipality != "" && e.Municipality != municipality {
		return false
	}
	return true
}

// Candidate 候选人条目
type Candidate struct {
	CandidateID string `json:"candidateId"`
	Name        string `json:"name"`
	Party       string `json:"party"`
}

// CandidateRecord 带归属信息的候选人
type CandidateRecord struct {
	Candidate
	Role         Role   `json:"role"`
	ElectionID   string `json:"electionId"`
	District     string `json:"district"`
	Municipality string `json:"municipality"`
}

// CandidateSet 某次选举中一个市的候选人名单
type CandidateSet struct {
	ElectionID            string      `json:"electionId"`
	District              string      `json:"district"`
	Municipality          string      `json:"municipality"`
	MayorCandidates       []Candidate `json:"mayorCandidates"`
	DeputyMayorCandidates []Candidate `json:"deputyMayorCandidates"`
}

// Ballot 选票，候选人编号均为编码后的值
type Ballot struct {
	BallotID             string    `json:"ballotId"`
	VoterID              string    `json:"voterId"`
	ElectionID           string    `json:"electionId"`
	District             string    `json:"district"`
	Municipality         string    `json:"municipality"`
	EncodedMayorID       string    `json:"encodedMayorId"`
	EncodedDeputyMayorID string    `json:"encodedDeputyMayorId"`
	MayorParty           string    `json:"mayorParty"`
	DeputyMayorParty     string    `json:"deputyMayorParty"`
	Timestamp            time.Time `json:"timestamp"`
}

// TallyCounter 某一(市长, 副市长)组合的计票
type TallyCounter struct {
	ElectionID           string `json:"electionId"`
	EncodedMayorID       string `json:"encodedMayorId"`
	EncodedDeputyMayorID string `json:"encodedDeputyMayorId"`
	MayorVotes           int64  `json:"mayorVotes"`
	DeputyMayorVotes     int64  `json:"deputyMayorVotes"`
}

// PairResult 解码后的组合计票
type PairResult struct {
	MayorID          string `json:"mayorId"`
	MayorVotes       int64  `json:"mayorVotes"`
	DeputyMayorID    string `json:"deputyMayorId"`
	DeputyMayorVotes int64  `json:"deputyMayorVotes"`
}

// CandidateTotal 单个候选人在某职位上的总票数
type CandidateTotal struct {
	CandidateID string `json:"candidateId"`
	Votes       int64  `json:"votes"`
}

// ElectionResults 选举结果
type ElectionResults struct {
	ElectionID        string           `json:"electionId"`
	Pairs             []PairResult     `json:"pairs"`
	MayorTotals       []CandidateTotal `json:"mayorTotals"`
	DeputyMayorTotals []CandidateTotal `json:"deputyMayorTotals"`
	TotalBallots      int64            `json:"totalBallots"`
	GeneratedAt       time.Time        `json:"generatedAt"`
}

// CastVoteRequest 投票请求，选民身份由会话层解析后原样传入
type CastVoteRequest struct {
	VoterID          string `json:"voterId"`
	ElectionID       string `json:"electionId"`
	District         string `json:"district"`
	Municipality     string `json:"municipality"`
	MayorID          string `json:"mayorId"`
	DeputyMayorID    string `json:"deputyMayorId"`
	MayorParty       string `json:"mayorParty"`
	DeputyMayorParty string `json:"deputyMayorParty"`
}

// BallotCastEvent Kafka投票事件，不包含选民身份与选择
type BallotCastEvent struct {
	ElectionID   string    `json:"electionId"`
	Municipality string    `json:"municipality"`
	CastAt       time.Time `json:"castAt"`
}
