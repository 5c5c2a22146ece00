package kiosk

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/mzollin/CocktailMixer/internal/errors"
	"github.com/mzollin/CocktailMixer/internal/hardware"
	"github.com/mzollin/CocktailMixer/internal/logger"
	"github.com/mzollin/CocktailMixer/internal/recipe"
	"go.uber.org/zap"
)

// 界面提示
const (
	NoticeLinkLost      = "hardware link lost"
	NoticeEmergencyStop = "emergency stop"
	NoticeNoCocktails   = "no cocktails available"
	NoticePourAborted   = "pour aborted"
	NoticePourFailed    = "pour failed: "
)

// Options 状态机参数
type Options struct {
	DefaultServingML uint32
	ServingSizes     []uint32
	PourTimeout      time.Duration
	QueueSize        int
}

func (o *Options) normalize() {
	if o.DefaultServingML == 0 {
		o.DefaultServingML = 20
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.PourTimeout <= 0 {
		o.PourTimeout = 5 * time.Minute
	}
}

type inputKind int

const (
	inputEvent inputKind = iota
	inputIntent
	inputPourResult
)

// input 有序队列中的一项
type input struct {
	seq    uint64
	kind   inputKind
	event  hardware.HardwareEvent
	intent Intent
	reply  chan error
	pourID string
	result hardware.DispenseResult
}

// stopSignal 急停或链路中断，走优先通道
type stopSignal struct {
	seq      uint64
	linkLost bool
	reason   string
}

type activePour struct {
	id     string
	cancel context.CancelFunc
}

// Machine 售酒机导航状态机。
// 所有状态变更都在 Run 协程内按入队顺序执行；急停和链路中断优先处理，
// 并丢弃在其之前入队、尚未处理的事件和意图。
type Machine struct {
	opts     Options
	store    recipe.Store
	actuator hardware.Actuator
	display  Display
	logger   *zap.Logger

	inbox    chan input
	priority chan stopSignal
	seq      atomic.Uint64
	running  atomic.Bool
	done     chan struct{}
	pours    sync.WaitGroup
	// stopSeq 已收到的最大停止序号，入队时即生效
	stopSeq  atomic.Uint64

	// 以下仅由 Run 协程访问
	ctx        context.Context
	state      State
	session    SessionContext
	cocktails  []string
	highlight  int
	doses      []recipe.Dose
	scaleGrams uint32
	notice     string
	pour       *activePour

	viewMu sync.RWMutex
	view   View

	// OnTransition 状态切换回调（可选，在 Run 协程中调用）
	OnTransition func(from, to State, trigger string)
}

// 实现硬件事件接收接口
var _ hardware.EventSink = (*Machine)(nil)

// NewMachine 创建状态机
func NewMachine(store recipe.Store, actuator hardware.Actuator, display Display, opts Options) *Machine {
	opts.normalize()
	if display == nil {
		display = DisplayFunc(func(View) {})
	}
	return &Machine{
		opts:     opts,
		store:    store,
		actuator: actuator,
		display:  display,
		logger:   logger.KioskLogger(),
		inbox:    make(chan input, opts.QueueSize),
		priority: make(chan stopSignal, 16),
		done:     make(chan struct{}),
	}
}

// Run 处理队列直到 ctx 结束。只能调用一次。
func (m *Machine) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return apperrors.New(apperrors.ErrInvalidParam, "状态机已在运行")
	}
	defer close(m.done)
	// 出酒协程退出（停泵帧已发出）后才算停止
	defer m.pours.Wait()

	m.ctx = ctx
	m.resetSession()
	m.publish()
	m.logger.Info("售酒机状态机启动", zap.Int("queue_size", m.opts.QueueSize))

	for {
		m.drainStops()

		var (
			reply chan error
			err   error
		)
		select {
		case <-ctx.Done():
			if m.pour != nil {
				m.abortPour()
			}
			m.logger.Info("售酒机状态机停止")
			return nil
		case s := <-m.priority:
			m.applyStop(s)
		case in := <-m.inbox:
			// 急停可能与该项同时就绪
			m.drainStops()
			reply, err = m.process(in)
		}

		// 先发布视图再回复，提交方返回后 Snapshot 已是新状态
		m.publish()
		if reply != nil {
			reply <- err
		}
	}
}

// Done 在 Run 退出后关闭
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// Post 投递硬件事件，急停走优先通道
func (m *Machine) Post(ev hardware.HardwareEvent) {
	seq := m.seq.Add(1)
	if ev.Type == hardware.EventEmergencyStop {
		m.signalStop(stopSignal{seq: seq, reason: "emergency_stop"})
		return
	}
	if ev.Type == hardware.EventIgnored {
		return
	}
	m.enqueue(input{seq: seq, kind: inputEvent, event: ev})
}

// EmergencyStop 触发急停（操作员接口或物理按钮）
func (m *Machine) EmergencyStop() {
	m.Post(hardware.EmergencyStop())
}

// LinkLost 硬件链路中断
func (m *Machine) LinkLost(reason string) {
	m.signalStop(stopSignal{seq: m.seq.Add(1), linkLost: true, reason: reason})
}

// Submit 提交用户意图并等待处理结果
func (m *Machine) Submit(ctx context.Context, intent Intent) error {
	reply := make(chan error, 1)
	in := input{seq: m.seq.Add(1), kind: inputIntent, intent: intent, reply: reply}

	select {
	case m.inbox <- in:
	case <-ctx.Done():
		return apperrors.Wrap(ctx.Err(), apperrors.ErrCanceled, "意图提交取消")
	case <-m.done:
		return apperrors.New(apperrors.ErrKioskStopped, "状态机已停止")
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return apperrors.Wrap(ctx.Err(), apperrors.ErrCanceled, "等待意图结果取消")
	case <-m.done:
		return apperrors.New(apperrors.ErrKioskStopped, "状态机已停止")
	}
}

// Snapshot 返回最近一次发布的视图
func (m *Machine) Snapshot() View {
	m.viewMu.RLock()
	defer m.viewMu.RUnlock()
	return cloneView(m.view)
}

func (m *Machine) signalStop(s stopSignal) {
	m.raiseStopSeq(s.seq)
	select {
	case m.priority <- s:
	default:
		// 通道已满时已有待处理的停止信号，丢弃范围已由 stopSeq 扩大
		m.logger.Warn("停止信号通道已满", zap.String("reason", s.reason), zap.Uint64("seq", s.seq))
	}
}

func (m *Machine) raiseStopSeq(seq uint64) {
	for {
		cur := m.stopSeq.Load()
		if seq <= cur || m.stopSeq.CompareAndSwap(cur, seq) {
			return
		}
	}
}

func (m *Machine) enqueue(in input) {
	select {
	case m.inbox <- in:
	case <-m.done:
	}
}

func (m *Machine) drainStops() {
	for {
		select {
		case s := <-m.priority:
			m.applyStop(s)
		default:
			return
		}
	}
}

func (m *Machine) process(in input) (chan error, error) {
	if stopSeq := m.stopSeq.Load(); in.kind != inputPourResult && in.seq < stopSeq {
		m.logger.Debug("丢弃停止前入队的输入", zap.Uint64("seq", in.seq), zap.Uint64("stop_seq", stopSeq))
		return in.reply, apperrors.New(apperrors.ErrIntentDiscarded, "停止信号之前提交的意图已丢弃")
	}

	switch in.kind {
	case inputEvent:
		m.handleEvent(in.event)
	case inputIntent:
		err := m.handleIntent(in.intent)
		if err != nil {
			m.logger.Debug("意图被拒绝",
				zap.String("intent", string(in.intent.Type)),
				zap.String("state", m.state.String()),
				zap.Error(err))
		}
		return in.reply, err
	case inputPourResult:
		m.handlePourResult(in.pourID, in.result)
	}
	return nil, nil
}

func (m *Machine) applyStop(s stopSignal) {
	m.raiseStopSeq(s.seq)
	if m.pour != nil {
		m.abortPour()
	}

	trigger := "emergency_stop"
	notice := NoticeEmergencyStop
	if s.linkLost {
		trigger = "link_lost"
		notice = NoticeLinkLost
	}
	m.logger.Warn("停止信号", zap.String("trigger", trigger), zap.String("reason", s.reason), zap.String("state", m.state.String()))

	m.transition(StateIntro, trigger)
	m.notice = notice
}

func (m *Machine) handleEvent(ev hardware.HardwareEvent) {
	switch ev.Type {
	case hardware.EventEncoderDelta:
		if m.state != StateSelectCocktail || len(m.cocktails) == 0 {
			return
		}
		n := int64(len(m.cocktails))
		idx := (int64(m.highlight) + int64(ev.Delta)) % n
		if idx < 0 {
			idx += n
		}
		m.highlight = int(idx)

	case hardware.EventEncoderClick:
		if m.state != StateSelectCocktail {
			return
		}
		if len(m.cocktails) == 0 {
			m.notice = NoticeNoCocktails
			return
		}
		m.session.SelectedCocktail = m.cocktails[m.highlight]
		m.notice = ""
		m.transition(StateSelectSize, "encoder_click")

	case hardware.EventScaleReading:
		m.scaleGrams = ev.Grams

	case hardware.EventEmergencyStop:
		m.applyStop(stopSignal{reason: "emergency_stop"})
	}
}

func (m *Machine) handleIntent(in Intent) error {
	switch in.Type {
	case IntentCancel:
		if m.state == StatePouring {
			return apperrors.New(apperrors.ErrPourInProgress, "出酒中不能取消，请使用急停")
		}
		m.transition(StateIntro, "cancel")
		m.notice = ""
		return nil

	case IntentStart:
		if m.state != StateIntro {
			return m.rejected(in)
		}
		m.notice = ""
		m.transition(StateSelectAlcohol, "start")
		return nil

	case IntentChooseAlcohol:
		if m.state != StateSelectAlcohol {
			return m.rejected(in)
		}
		m.session.Alcoholic = in.Alcoholic
		m.transition(StateSelectMode, "choose_alcohol")
		return nil

	case IntentSelectMode:
		if m.state != StateSelectMode {
			return m.rejected(in)
		}
		return m.selectMode(in.Mode)

	case IntentSelectSize:
		if m.state != StateSelectSize {
			return m.rejected(in)
		}
		if !m.validSize(in.SizeML) {
			return apperrors.Newf(apperrors.ErrInvalidServingSize, "不支持的份量: %d ml", in.SizeML)
		}
		m.session.ServingSizeML = in.SizeML
		return nil

	case IntentStartPour:
		if m.state != StateSelectSize {
			return m.rejected(in)
		}
		return m.startPour()

	default:
		return apperrors.Newf(apperrors.ErrInvalidParam, "未知意图: %q", in.Type)
	}
}

func (m *Machine) rejected(in Intent) error {
	return apperrors.Newf(apperrors.ErrInvalidTransition, "状态 %s 不接受意图 %s", m.state, in.Type)
}

func (m *Machine) selectMode(mode Mode) error {
	switch mode {
	case ModeByName:
	case ModeByIngredients, ModeRecent, ModeCustom, ModeRandomDrink, ModeRandomIngredients:
		return apperrors.Newf(apperrors.ErrNotImplemented, "选酒方式 %s 暂未实现", mode)
	default:
		return apperrors.Newf(apperrors.ErrInvalidParam, "未知选酒方式: %q", mode)
	}

	catalog, err := m.store.Catalog(m.ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "读取酒单失败")
	}
	visible := catalog.Visible(m.session.Alcoholic)
	names := make([]string, len(visible))
	for i, r := range visible {
		names[i] = r.Name
	}

	m.cocktails = names
	m.highlight = 0
	m.session.SelectedCocktail = ""
	if len(names) == 0 {
		m.notice = NoticeNoCocktails
	} else {
		m.notice = ""
	}
	m.transition(StateSelectCocktail, "select_mode")
	return nil
}

func (m *Machine) validSize(ml uint32) bool {
	if ml == 0 {
		return false
	}
	if len(m.opts.ServingSizes) == 0 {
		return true
	}
	for _, s := range m.opts.ServingSizes {
		if s == ml {
			return true
		}
	}
	return false
}

// startPour 计算配方剂量并异步启动出酒，失败时回到选酒界面
func (m *Machine) startPour() error {
	if m.session.ServingSizeML == 0 {
		m.session.ServingSizeML = m.opts.DefaultServingML
	}

	doses, err := m.computeDoses()
	if err != nil {
		m.logger.Error("配方计算失败",
			zap.String("cocktail", m.session.SelectedCocktail),
			zap.Uint32("serving_ml", m.session.ServingSizeML),
			zap.Error(err))
		m.notice = err.Error()
		m.session.SelectedCocktail = ""
		m.transition(StateSelectCocktail, "calc_failed")
		return err
	}

	instructions := make([]hardware.DispenseInstruction, len(doses))
	for i, d := range doses {
		instructions[i] = hardware.DispenseInstruction{Ingredient: d.Ingredient, MassGrams: d.MassGrams}
	}

	id := uuid.NewString()
	pctx, cancel := context.WithTimeout(m.ctx, m.opts.PourTimeout)
	m.pour = &activePour{id: id, cancel: cancel}
	m.doses = doses
	m.scaleGrams = 0
	m.notice = ""
	m.transition(StatePouring, "start_pour")

	m.logger.Info("开始出酒",
		zap.String("pour_id", id),
		zap.String("cocktail", m.session.SelectedCocktail),
		zap.Uint32("serving_ml", m.session.ServingSizeML),
		zap.Float64("total_g", recipe.TotalMass(doses)))

	actuator := m.actuator
	runCtx := m.ctx
	m.pours.Add(1)
	go func() {
		defer m.pours.Done()
		res := actuator.Dispense(pctx, instructions)
		cancel()
		select {
		case m.inbox <- input{seq: m.seq.Add(1), kind: inputPourResult, pourID: id, result: res}:
		case <-runCtx.Done():
		}
	}()
	return nil
}

func (m *Machine) computeDoses() ([]recipe.Dose, error) {
	r, err := m.store.Recipe(m.ctx, m.session.SelectedCocktail)
	if err != nil {
		return nil, err
	}
	densities, err := m.store.Densities(m.ctx)
	if err != nil {
		return nil, err
	}
	return recipe.Normalize(r, float64(m.session.ServingSizeML), densities)
}

func (m *Machine) handlePourResult(id string, res hardware.DispenseResult) {
	if m.pour == nil || m.pour.id != id {
		m.logger.Debug("忽略过期的出酒结果", zap.String("pour_id", id), zap.String("status", res.Status.String()))
		return
	}
	m.pour.cancel()
	m.pour = nil

	fields := []zap.Field{zap.String("pour_id", id), zap.String("status", res.Status.String())}
	switch res.Status {
	case hardware.DispenseCompleted:
		m.logger.Info("出酒完成", fields...)
		m.transition(StateIntro, "pour_completed")
		m.notice = ""
	case hardware.DispenseAborted:
		m.logger.Warn("出酒中止", fields...)
		m.transition(StateIntro, "pour_aborted")
		m.notice = NoticePourAborted
	default:
		m.logger.Error("出酒失败", append(fields, zap.String("reason", res.Reason))...)
		m.transition(StateIntro, "pour_failed")
		m.notice = NoticePourFailed + res.Reason
	}
}

func (m *Machine) abortPour() {
	p := m.pour
	m.pour = nil
	p.cancel()
	if err := m.actuator.Abort(); err != nil {
		m.logger.Error("中止出酒失败", zap.String("pour_id", p.id), zap.Error(err))
		return
	}
	m.logger.Warn("出酒已中止", zap.String("pour_id", p.id))
}

// transition 切换状态并执行进入动作
func (m *Machine) transition(to State, trigger string) {
	from := m.state
	m.state = to

	switch to {
	case StateIntro:
		m.resetSession()
	case StateSelectSize:
		if m.session.ServingSizeML == 0 {
			m.session.ServingSizeML = m.opts.DefaultServingML
		}
	}

	logger.LogTransition(from.String(), to.String(), trigger)
	if m.OnTransition != nil {
		m.OnTransition(from, to, trigger)
	}
}

func (m *Machine) resetSession() {
	m.state = StateIntro
	m.session = SessionContext{}
	m.cocktails = nil
	m.highlight = 0
	m.doses = nil
	m.scaleGrams = 0
}

func (m *Machine) buildView() View {
	v := View{
		State:      m.state,
		Session:    m.session,
		ScaleGrams: m.scaleGrams,
		Notice:     m.notice,
	}
	switch m.state {
	case StateSelectMode:
		v.Modes = Modes
	case StateSelectCocktail:
		v.Cocktails = m.cocktails
		v.Highlighted = m.highlight
	case StateSelectSize:
		v.ServingSizes = m.opts.ServingSizes
	case StatePouring:
		v.Doses = m.doses
		if m.pour != nil {
			v.PourID = m.pour.id
		}
	}
	return cloneView(v)
}

// publish 视图有变化时通知显示层
func (m *Machine) publish() {
	v := m.buildView()

	m.viewMu.Lock()
	prev := m.view
	v.Seq = prev.Seq
	if prev.Seq != 0 && reflect.DeepEqual(prev, v) {
		m.viewMu.Unlock()
		return
	}
	v.Seq = prev.Seq + 1
	m.view = v
	m.viewMu.Unlock()

	m.display.Render(cloneView(v))
}

func cloneView(v View) View {
	if v.Modes != nil {
		v.Modes = append([]Mode(nil), v.Modes...)
	}
	if v.Cocktails != nil {
		v.Cocktails = append([]string(nil), v.Cocktails...)
	}
	if v.ServingSizes != nil {
		v.ServingSizes = append([]uint32(nil), v.ServingSizes...)
	}
	if v.Doses != nil {
		v.Doses = append([]recipe.Dose(nil), v.Doses...)
	}
	return v
}
