package timer

import logx "github.com/shantoshdurai/ClassNow-app/pkg/logx"

func logNop() logx.Logger { return logx.Nop() }
